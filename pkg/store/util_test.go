package store

import (
	"errors"
	"reflect"
	"testing"
)

func TestChunkRange(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		chunkSize int
		want      [][2]int
	}{
		{"even split", 6, 3, [][2]int{{0, 3}, {3, 6}}},
		{"uneven tail", 7, 3, [][2]int{{0, 3}, {3, 6}, {6, 7}}},
		{"single window", 2, 10, [][2]int{{0, 2}}},
		{"zero total", 0, 3, nil},
		{"zero chunk size covers all", 4, 0, [][2]int{{0, 4}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got [][2]int
			err := ChunkRange(tt.total, tt.chunkSize, func(start, end int) error {
				got = append(got, [2]int{start, end})
				return nil
			})
			if err != nil {
				t.Fatalf("ChunkRange() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("windows = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChunkRangeStopsOnError(t *testing.T) {
	wantErr := errors.New("boom")
	calls := 0
	err := ChunkRange(10, 2, func(start, end int) error {
		calls++
		if calls == 2 {
			return wantErr
		}
		return nil
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("ChunkRange() error = %v, want %v", err, wantErr)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDedupeStrings(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"drops duplicates keeping first order", []string{"b", "a", "b", "c", "a"}, []string{"b", "a", "c"}},
		{"drops empties", []string{"", "a", "", "b"}, []string{"a", "b"}},
		{"nil input", nil, nil},
		{"all empty", []string{"", ""}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DedupeStrings(tt.in)
			if len(got) == 0 && len(tt.want) == 0 {
				if (got == nil) != (tt.want == nil) {
					t.Errorf("DedupeStrings(%v) = %#v, want %#v", tt.in, got, tt.want)
				}
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DedupeStrings(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
