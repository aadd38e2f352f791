package chunking

import (
	"testing"

	"github.com/tutorstack/backend/pkg/common"
)

func TestBuildConceptMapCoOccurrence(t *testing.T) {
	chunks := []*common.Chunk{
		{PublicID: "c1", KeyConcepts: []string{"osmosis", "diffusion"}},
		{PublicID: "c2", KeyConcepts: []string{"osmosis", "membranes"}},
		{PublicID: "c3", KeyConcepts: []string{"mitosis"}},
	}

	cmap := buildConceptMap(9, chunks)
	if cmap.DocumentID != 9 {
		t.Errorf("document id = %d", cmap.DocumentID)
	}
	if len(cmap.Entries) != 4 {
		t.Fatalf("expected 4 concepts, got %d", len(cmap.Entries))
	}

	osmosis := cmap.Entries["osmosis"]
	if len(osmosis.ChunkIDs) != 2 {
		t.Errorf("osmosis chunk ids = %v", osmosis.ChunkIDs)
	}
	wantRelated := []string{"diffusion", "membranes"}
	if len(osmosis.RelatedConcepts) != len(wantRelated) {
		t.Fatalf("osmosis related = %v", osmosis.RelatedConcepts)
	}
	for i, want := range wantRelated {
		if osmosis.RelatedConcepts[i] != want {
			t.Errorf("osmosis related[%d] = %q, want %q", i, osmosis.RelatedConcepts[i], want)
		}
	}

	mitosis := cmap.Entries["mitosis"]
	if len(mitosis.RelatedConcepts) != 0 {
		t.Errorf("lone concept should have no related concepts, got %v", mitosis.RelatedConcepts)
	}
}

func TestTagChunksMultiTopic(t *testing.T) {
	pages := []Page{
		{Index: 0, Start: 0, End: 100},
		{Index: 1, Start: 100, End: 200},
	}
	spans := []topicSpan{
		{Topic: "A", StartPage: 0, EndPage: 1, KeyConcepts: []string{"a"}},
		{Topic: "B", StartPage: 1, EndPage: 2, KeyConcepts: []string{"b"}},
	}
	chunks := []*common.Chunk{
		{PublicID: "c1", StartOffset: 0, EndOffset: 150, Topics: []string{}},
		{PublicID: "c2", StartOffset: 150, EndOffset: 200, Topics: []string{}},
	}

	topics := tagChunks(9, chunks, spans, pages)
	if len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(topics))
	}

	if got := topics[0].ChunkIDs; len(got) != 1 || got[0] != "c1" {
		t.Errorf("topic A chunk ids = %v", got)
	}
	if got := topics[1].ChunkIDs; len(got) != 2 {
		t.Errorf("topic B should cover both chunks, got %v", got)
	}
	if topics[0].Importance != 0.5 || topics[1].Importance != 1.0 {
		t.Errorf("importance = %v, %v", topics[0].Importance, topics[1].Importance)
	}
	if len(chunks[0].Topics) != 2 {
		t.Errorf("straddling chunk topics = %v", chunks[0].Topics)
	}
}
