package embedding

import (
	"errors"
	"math"
	"testing"

	"github.com/tutorstack/backend/pkg/common"
)

func TestValidateVector(t *testing.T) {
	tests := []struct {
		name    string
		vec     []float32
		dim     int
		wantErr bool
	}{
		{"valid unit vector", []float32{0.6, 0.8}, 2, false},
		{"valid large norm", []float32{60, 80}, 2, false},
		{"wrong dimensionality", []float32{1, 2, 3}, 2, true},
		{"empty", nil, 2, true},
		{"nan component", []float32{1, float32(math.NaN())}, 2, true},
		{"inf component", []float32{float32(math.Inf(1)), 0}, 2, true},
		{"zero vector", []float32{0, 0}, 2, true},
		{"norm over cap", []float32{100, 100}, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVector(tt.vec, tt.dim)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateVector = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var validationErr *common.ValidationError
				if !errors.As(err, &validationErr) {
					t.Errorf("error type %T, want ValidationError", err)
				}
			}
		})
	}
}
