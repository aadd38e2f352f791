package ai

import (
	"testing"
)

type topicPayload struct {
	Topic        string   `json:"topic"`
	SectionTitle string   `json:"section_title,omitempty"`
	KeyConcepts  []string `json:"key_concepts,omitempty"`
}

func TestUnmarshalFlexibleTopicVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  topicPayload
	}{
		{
			name:  "valid json object",
			input: `{"topic":"Cell Transport"}`,
			want:  topicPayload{Topic: "Cell Transport"},
		},
		{
			name:  "unquoted key and single quotes",
			input: `{topic: 'Cell Transport'}`,
			want:  topicPayload{Topic: "Cell Transport"},
		},
		{
			name:  "trailing comma",
			input: `{"topic":"Cell Transport",}`,
			want:  topicPayload{Topic: "Cell Transport"},
		},
		{
			name:  "missing endbracket",
			input: `{"topic":"Cell Transport`,
			want:  topicPayload{Topic: "Cell Transport"},
		},
		{
			name:  "stringified invalid json object",
			input: `"{topic: 'Cell Transport'}"`,
			want:  topicPayload{Topic: "Cell Transport"},
		},
		{
			name:  "duplicate leading brace",
			input: "{\n{\n  \"topic\": \"Cell Transport\"\n}\n",
			want:  topicPayload{Topic: "Cell Transport"},
		},
		{
			name:  "duplicate leading brace no newlines",
			input: `{ { "topic": "Cell Transport" }`,
			want:  topicPayload{Topic: "Cell Transport"},
		},
		{
			name:  "unquoted concept list",
			input: `{topic: 'Cell Transport', section_title: 'Membranes', key_concepts: [osmosis, diffusion,]}`,
			want: topicPayload{
				Topic:        "Cell Transport",
				SectionTitle: "Membranes",
				KeyConcepts:  []string{"osmosis", "diffusion"},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got topicPayload
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if got.Topic != tc.want.Topic || got.SectionTitle != tc.want.SectionTitle {
				t.Fatalf("UnmarshalFlexible() got = %+v, want %+v", got, tc.want)
			}
			if len(got.KeyConcepts) != len(tc.want.KeyConcepts) {
				t.Fatalf("key_concepts = %v, want %v", got.KeyConcepts, tc.want.KeyConcepts)
			}
			for i := range got.KeyConcepts {
				if got.KeyConcepts[i] != tc.want.KeyConcepts[i] {
					t.Fatalf("key_concepts[%d] = %q, want %q", i, got.KeyConcepts[i], tc.want.KeyConcepts[i])
				}
			}
		})
	}
}

func TestUnmarshalFlexibleArrayVariants(t *testing.T) {
	input := `[{topic:'Osmosis'},{topic:'Diffusion',}]`
	var got []topicPayload
	if err := UnmarshalFlexible(input, &got); err != nil {
		t.Fatalf("UnmarshalFlexible() error = %v", err)
	}
	if len(got) != 2 || got[0].Topic != "Osmosis" || got[1].Topic != "Diffusion" {
		t.Fatalf("UnmarshalFlexible() got = %+v, want two topics Osmosis,Diffusion", got)
	}
}

func TestUnmarshalFlexibleScorePayload(t *testing.T) {
	type scorePayload struct {
		Clarity         float64  `json:"clarity"`
		ContentAccuracy float64  `json:"content_accuracy"`
		CognitiveLevel  string   `json:"cognitive_level"`
		Issues          []string `json:"issues"`
	}

	// Stringified-with-newlines output, the shape scoring models tend to
	// produce when asked for bare JSON.
	input := `"{\n  \"clarity\": 4,\n  \"content_accuracy\": 3.5,\n  \"cognitive_level\": \"apply\",\n  \"issues\": [\"distractor B is implausible\"]\n}\n"`

	var got scorePayload
	if err := UnmarshalFlexible(input, &got); err != nil {
		t.Fatalf("UnmarshalFlexible() error = %v", err)
	}
	if got.Clarity != 4 || got.ContentAccuracy != 3.5 || got.CognitiveLevel != "apply" {
		t.Fatalf("UnmarshalFlexible() got = %+v", got)
	}
	if len(got.Issues) != 1 || got.Issues[0] != "distractor B is implausible" {
		t.Fatalf("issues = %v", got.Issues)
	}
}

func TestUnmarshalFlexibleUnrecoverable(t *testing.T) {
	var got topicPayload
	if err := UnmarshalFlexible("no json here", &got); err == nil {
		t.Fatal("UnmarshalFlexible() expected error for unrecoverable input")
	}
}
