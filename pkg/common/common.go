package common

// Document represents one ingested source document. The raw text is produced
// by an upstream extraction step; this core only reads it.
type Document struct {
	ID          int64          `json:"id"`
	CategoryID  int64          `json:"category_id"`
	Title       string         `json:"title"`
	Text        string         `json:"text"`
	Status      ChunkingStatus `json:"chunking_status"`
	TotalChunks int            `json:"total_chunks"`
	TotalTokens int            `json:"total_tokens"`
}

// Chunk is a bounded span of document text and the atomic retrieval unit.
//
// Text may carry an overlap prefix copied from the end of the previous
// chunk; StartOffset and EndOffset always describe the original,
// non-overlapped span so that concatenating spans in ordinal order
// reconstructs the document text exactly.
type Chunk struct {
	ID           int64           `json:"id"`
	PublicID     string          `json:"public_id"`
	DocumentID   int64           `json:"document_id"`
	Ordinal      int             `json:"ordinal"`
	Text         string          `json:"text"`
	TokenCount   int             `json:"token_count"`
	StartOffset  int             `json:"start_offset"`
	EndOffset    int             `json:"end_offset"`
	SectionTitle string          `json:"section_title,omitempty"`
	PrimaryTopic string          `json:"primary_topic,omitempty"`
	Topics       []string        `json:"topics"`
	KeyConcepts  []string        `json:"key_concepts"`
	Embedding    []float32       `json:"-"`
	EmbedStatus  EmbeddingStatus `json:"embedding_status"`
}

// Topic is a labeled span of a document, derived during chunking. Topics are
// never edited directly; rerunning the chunker rebuilds them.
type Topic struct {
	ID          int64    `json:"id"`
	DocumentID  int64    `json:"document_id"`
	Name        string   `json:"name"`
	ParentID    *int64   `json:"parent_id,omitempty"`
	ChunkIDs    []string `json:"chunk_ids"`
	KeyConcepts []string `json:"key_concepts"`
	Importance  float64  `json:"importance"`
}

// ConceptMap is a per-document co-occurrence index: for every key concept it
// records which chunks mention it and which other concepts share a chunk
// with it.
type ConceptMap struct {
	DocumentID int64                   `json:"document_id"`
	Entries    map[string]ConceptEntry `json:"entries"`
}

// ConceptEntry holds the chunk and co-occurrence sets for a single concept.
type ConceptEntry struct {
	ChunkIDs        []string `json:"chunk_ids"`
	RelatedConcepts []string `json:"related_concepts"`
}

// ScoredChunk pairs a chunk with its similarity score from a vector search.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Candidate is a generated item (quiz question or flashcard) awaiting
// validation. Candidates are transient; only accepted ones are handed to the
// persistence layer upstream.
type Candidate struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Text        string            `json:"text"`
	Answer      string            `json:"answer"`
	Distractors []string          `json:"distractors,omitempty"`
	Rationale   string            `json:"rationale,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// ScoreResult is the full quality judgment for one candidate.
type ScoreResult struct {
	Dimensions     map[Dimension]float64 `json:"dimensions"`
	Overall        float64               `json:"overall"`
	CognitiveLevel string                `json:"cognitive_level"`
	Issues         []string              `json:"issues"`
}

// Exemplar is a reference item selected for few-shot prompting, together
// with the score that qualified it.
type Exemplar struct {
	Candidate Candidate   `json:"candidate"`
	Score     ScoreResult `json:"score"`
}

// StyleProfile captures what "good" looks like for one content collection:
// a handful of high-scoring exemplars, the per-dimension score averages of
// the reference set, and the cognitive levels it targets.
type StyleProfile struct {
	CategoryID      int64                 `json:"category_id"`
	Exemplars       []Exemplar            `json:"exemplars"`
	CriteriaSummary map[Dimension]float64 `json:"criteria_summary"`
	CognitiveLevels []string              `json:"cognitive_levels"`
}

// Dimension identifies one axis of the quality rubric.
type Dimension string

const (
	DimClarity         Dimension = "clarity"
	DimContentAccuracy Dimension = "content_accuracy"
	DimAnswerAccuracy  Dimension = "answer_accuracy"
	DimDistractors     Dimension = "distractor_quality"
	DimCognitiveMatch  Dimension = "cognitive_level_match"
	DimRationale       Dimension = "rationale_quality"
	DimSingleConcept   Dimension = "single_concept_focus"
	DimCoverTest       Dimension = "cover_test"
)

// DimensionWeights are the fixed rubric weights. They sum to 1.0 and are
// shared between exemplar selection and candidate validation so scores stay
// comparable.
var DimensionWeights = map[Dimension]float64{
	DimClarity:         0.15,
	DimContentAccuracy: 0.20,
	DimAnswerAccuracy:  0.15,
	DimDistractors:     0.15,
	DimCognitiveMatch:  0.10,
	DimRationale:       0.10,
	DimSingleConcept:   0.10,
	DimCoverTest:       0.05,
}

// Dimensions lists every rubric dimension in report order.
var Dimensions = []Dimension{
	DimClarity,
	DimContentAccuracy,
	DimAnswerAccuracy,
	DimDistractors,
	DimCognitiveMatch,
	DimRationale,
	DimSingleConcept,
	DimCoverTest,
}

const (
	// MinScore and MaxScore bound every rubric dimension and the overall.
	MinScore = 1.0
	MaxScore = 5.0

	// ExemplarThreshold is the minimum overall score for a reference item
	// to qualify as a few-shot exemplar.
	ExemplarThreshold = 4.0

	// DefaultAcceptThreshold is the minimum overall score for a generated
	// candidate to be accepted.
	DefaultAcceptThreshold = 3.5
)
