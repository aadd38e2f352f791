package ai

const TopicDetectPrompt = `
# Task Context
You are a helpful assistant specialized in analyzing study material. You will be provided with one page of a source document.

# Background Data
Page %d of %d from the document "%s":

%s

# Detailed Task Description & Rules
- Assign one short topic label that best describes what this page is about.
- The label should be specific enough to distinguish this page from pages about other subjects, but general enough to cover the whole page (e.g., "Cellular Respiration", not "Paragraph about mitochondria on page 3").
- If the page opens with a heading, you may use it as the section title; otherwise leave the section title empty.
- Extract up to 8 key concepts: the distinct terms, entities, or ideas a student would need to learn from this page.
- Key concepts must appear on the page. Do not invent concepts from general knowledge.
- Use the language of the source text for the label and the concepts.

# Output Formatting
Return a JSON object with this structure:
{
  "topic": "<short topic label>",
  "section_title": "<heading if present, else empty string>",
  "key_concepts": ["<concept1>", "<concept2>"]
}
`

const ScorePrompt = `
# Task Context
You are a strict quality reviewer for AI-generated study items (quiz questions and flashcards). You will be provided with one candidate item and the source excerpt it must be grounded in.

# Background Data
Source excerpt:
%s

Candidate item (type: %s):
%s

# Detailed Task Description & Rules
Score the candidate on each dimension from 1 (very poor) to 5 (excellent):
- clarity: the item is unambiguous, grammatical, and understandable on first read.
- content_accuracy: every factual claim in the item is supported by the source excerpt.
- answer_accuracy: the marked answer is correct according to the source excerpt.
- distractor_quality: wrong options are plausible, mutually exclusive, and clearly incorrect. Score 3 if the item type has no distractors.
- cognitive_level_match: the mental skill the item exercises matches its difficulty; name that skill as one of "recall", "understand", "apply", "analyze", "evaluate".
- rationale_quality: the explanation justifies the answer and references the source material.
- single_concept_focus: the item tests exactly one concept, not several at once.
- cover_test: the question is answerable by a knowledgeable student without seeing the options.

Additional rules:
- Judge only against the source excerpt, never against outside knowledge.
- List every concrete defect you find as a short issue string (empty list if none).
- Do not round scores up to be kind. A 3 is an average item.

# Output Formatting
Return a JSON object with this structure:
{
  "clarity": <1-5>,
  "content_accuracy": <1-5>,
  "answer_accuracy": <1-5>,
  "distractor_quality": <1-5>,
  "cognitive_level_match": <1-5>,
  "rationale_quality": <1-5>,
  "single_concept_focus": <1-5>,
  "cover_test": <1-5>,
  "cognitive_level": "<recall|understand|apply|analyze|evaluate>",
  "issues": ["<issue>"]
}
`

const RefinePrompt = `
# Task Context
You are revising an AI-generated study item that failed quality review. You will be provided with the item, the source excerpt it must be grounded in, and the reviewer's findings.

# Background Data
Source excerpt:
%s

Rejected item (type: %s):
%s

Weakest dimensions: %s
Reviewer issues:
%s

# Detailed Task Description & Rules
- Rewrite the item so that the weakest dimensions improve, without degrading the others.
- Keep the same item type and the same concept under test.
- Every factual claim must remain supported by the source excerpt.
- Keep the answer correct; adjust distractors or wording as needed.

# Output Formatting
Return a JSON object with this structure:
{
  "text": "<revised question or prompt text>",
  "answer": "<revised answer>",
  "distractors": ["<distractor>"],
  "rationale": "<revised rationale>"
}
`
