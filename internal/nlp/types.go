// Package nlp implements the OntoMed intent-resolution engine: a rule-based
// pipeline that maps a free-text utterance to a calibrated intent plus
// extracted entities, combining entity, dependency and keyword evidence over
// runtime-learned vocabulary.
//
// The package performs no I/O of its own. Linguistic annotation is consumed
// through the Annotator interface; ontology concepts arrive as already
// fetched data through a ConceptSource.
package nlp

import "fmt"

// Entity is a tagged span extracted from an utterance. Immutable once
// produced; Start and End are byte offsets into the original text.
type Entity struct {
	Value string `json:"value"`
	Type  string `json:"type"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

func (e Entity) String() string {
	return fmt.Sprintf("%s=%s", e.Type, e.Value)
}

// Intent is the resolution result for one utterance. Confidence is always
// in [0,1]. Result objects are request-scoped and never persisted.
type Intent struct {
	Name       string   `json:"intent_name"`
	Confidence float64  `json:"confidence"`
	Entities   []Entity `json:"entities"`
}

func (i Intent) String() string {
	return fmt.Sprintf("%s (confidence: %.2f)", i.Name, i.Confidence)
}

// FallbackIntent is the generic intent returned when nothing else resolves.
const FallbackIntent = "outro"

// Token is one annotated token of an utterance.
type Token struct {
	Surface string `json:"surface"`
	Lemma   string `json:"lemma"`
	POS     string `json:"pos"`
	IsStop  bool   `json:"is_stop"`
	IsPunct bool   `json:"is_punct"`
	Index   int    `json:"index"`
	// Offset is the byte offset of the token in the original text.
	Offset int `json:"offset"`
}

// End returns the byte offset one past the token surface.
func (t Token) End() int { return t.Offset + len(t.Surface) }

// DependencyEdge is one arc of the dependency parse. Head and Child are
// token indices; Relation is the dependency label ("dobj", "prep", ...).
type DependencyEdge struct {
	Head     int    `json:"head"`
	Child    int    `json:"child"`
	Relation string `json:"relation"`
}

// EntitySpan is a base named-entity span supplied by the annotator, in
// token indices [Start, End).
type EntitySpan struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Label string `json:"label"`
}

// NounChunk is a nominal phrase span in token indices [Start, End).
type NounChunk struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Annotation is the full linguistic analysis of one text.
type Annotation struct {
	Text       string           `json:"text"`
	Tokens     []Token          `json:"tokens"`
	Edges      []DependencyEdge `json:"dependency_edges"`
	Entities   []EntitySpan     `json:"entity_spans"`
	NounChunks []NounChunk      `json:"noun_chunks"`
}

// Children returns the indices of tokens attached to head, optionally
// filtered by dependency relation (empty relations means any).
func (a *Annotation) Children(head int, relations ...string) []int {
	var out []int
	for _, e := range a.Edges {
		if e.Head != head {
			continue
		}
		if len(relations) == 0 {
			out = append(out, e.Child)
			continue
		}
		for _, r := range relations {
			if e.Relation == r {
				out = append(out, e.Child)
				break
			}
		}
	}
	return out
}

// Relation returns the dependency label attaching child to its head, or ""
// when the token is the root.
func (a *Annotation) Relation(child int) string {
	for _, e := range a.Edges {
		if e.Child == child {
			return e.Relation
		}
	}
	return ""
}

// ContentLemmas returns the lemmas of non-stopword, non-punctuation tokens.
func (a *Annotation) ContentLemmas() []string {
	var out []string
	for _, t := range a.Tokens {
		if t.IsStop || t.IsPunct {
			continue
		}
		out = append(out, t.Lemma)
	}
	return out
}

// Lemmas returns the lemma of every token.
func (a *Annotation) Lemmas() []string {
	out := make([]string, len(a.Tokens))
	for i, t := range a.Tokens {
		out[i] = t.Lemma
	}
	return out
}

// SpanText reconstructs the surface text of a token span [start, end).
func (a *Annotation) SpanText(start, end int) string {
	if start < 0 || end > len(a.Tokens) || start >= end {
		return ""
	}
	first := a.Tokens[start]
	last := a.Tokens[end-1]
	if last.End() <= len(a.Text) && first.Offset <= last.End() {
		return a.Text[first.Offset:last.End()]
	}
	return ""
}

// Annotator produces linguistic annotations for raw text. Implementations
// wrap an external tokenizer/lemmatizer/parser; the engine never implements
// its own. Annotate must be safe for concurrent use.
type Annotator interface {
	Annotate(text string) (*Annotation, error)
}

// DynamicIntent is the registration payload for a template-derived intent.
type DynamicIntent struct {
	Name             string   `yaml:"intent" json:"intent"`
	Keywords         []string `yaml:"keywords" json:"keywords"`
	Patterns         []string `yaml:"patterns" json:"patterns"`
	ExpectedEntities []string `yaml:"entities" json:"entities"`
	Description      string   `yaml:"description" json:"description"`
	Examples         []string `yaml:"examples" json:"examples"`
}

// Provenance classifies where a recognition pattern came from. Static
// entries are immutable, ontology entries are wholly replaced on refresh,
// dynamic entries are additive.
type Provenance string

const (
	ProvenanceStatic   Provenance = "static"
	ProvenanceOntology Provenance = "ontology"
	ProvenanceDynamic  Provenance = "dynamic"
)

// EntityPattern is one surface pattern for the rule-based entity tagger.
type EntityPattern struct {
	Label      string     `json:"label"`
	Surface    string     `json:"surface"`
	Provenance Provenance `json:"provenance"`
	// ConceptID links ontology-derived patterns back to their concept.
	ConceptID string `json:"concept_id,omitempty"`
}
