package nlp

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lehdermann/ontomed/internal/logging"
)

// Concept is one ontology concept as delivered by a ConceptSource.
type Concept struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Synonyms []string `json:"synonyms"`
}

// ConceptSource fetches the current concept set from the ontology backend.
// Fetch is called at most once per refresh interval.
type ConceptSource interface {
	Fetch(ctx context.Context) ([]Concept, error)
}

// ConceptSourceFunc adapts a function to the ConceptSource interface.
type ConceptSourceFunc func(ctx context.Context) ([]Concept, error)

func (f ConceptSourceFunc) Fetch(ctx context.Context) ([]Concept, error) { return f(ctx) }

// defaultConceptTTL is how long a concept snapshot stays fresh.
const defaultConceptTTL = time.Hour

// ConceptManager keeps the medical vocabulary synchronized with the
// ontology. It caches the last successful snapshot and, on refresh, swaps
// every ontology-provenance pattern in the vocabulary for the new concept
// set. A failed fetch keeps the stale snapshot in service.
type ConceptManager struct {
	source ConceptSource
	vocab  *VocabularyStore
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	snapshot  []Concept
	fetchedAt time.Time
}

// NewConceptManager wires a source to the vocabulary. A non-positive ttl
// falls back to one hour.
func NewConceptManager(source ConceptSource, vocab *VocabularyStore, ttl time.Duration) *ConceptManager {
	if ttl <= 0 {
		ttl = defaultConceptTTL
	}
	return &ConceptManager{source: source, vocab: vocab, ttl: ttl, now: time.Now}
}

// Refresh fetches concepts when the snapshot is stale (or force is set) and
// rebuilds the ontology portion of the vocabulary. Returns the number of
// concepts in service.
func (m *ConceptManager) Refresh(ctx context.Context, force bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := logging.Get(logging.CategoryOntology)
	if !force && m.snapshot != nil && m.now().Sub(m.fetchedAt) < m.ttl {
		return len(m.snapshot), nil
	}

	concepts, err := m.source.Fetch(ctx)
	if err != nil {
		if m.snapshot != nil {
			log.Warnw("concept fetch failed, keeping stale snapshot",
				"error", err, "concepts", len(m.snapshot), "age", m.now().Sub(m.fetchedAt))
			return len(m.snapshot), nil
		}
		return 0, err
	}

	m.snapshot = concepts
	m.fetchedAt = m.now()
	patterns := conceptPatterns(concepts)
	m.vocab.ReplaceOntologyPatterns(patterns)
	log.Infow("ontology vocabulary refreshed", "concepts", len(concepts), "patterns", len(patterns))
	return len(concepts), nil
}

// Concepts returns the current snapshot (possibly stale, possibly nil).
func (m *ConceptManager) Concepts() []Concept {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Concept, len(m.snapshot))
	copy(out, m.snapshot)
	return out
}

// conceptPatterns expands concepts into entity patterns: the label and each
// synonym, with underscore and space variants of each, deduplicated
// case-insensitively. Every pattern is a medical term.
func conceptPatterns(concepts []Concept) []EntityPattern {
	var out []EntityPattern
	seen := make(map[string]struct{})
	add := func(id, surface string) {
		surface = strings.TrimSpace(surface)
		if surface == "" {
			return
		}
		key := strings.ToLower(surface)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, EntityPattern{
			Label:      "termo_medico",
			Surface:    surface,
			Provenance: ProvenanceOntology,
			ConceptID:  id,
		})
	}
	for _, c := range concepts {
		for _, v := range surfaceVariants(c.Label) {
			add(c.ID, v)
		}
		for _, syn := range c.Synonyms {
			for _, v := range surfaceVariants(syn) {
				add(c.ID, v)
			}
		}
	}
	return out
}

// surfaceVariants yields the term itself plus its underscore/space twin.
func surfaceVariants(term string) []string {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}
	variants := []string{term}
	switch {
	case strings.Contains(term, "_"):
		variants = append(variants, strings.ReplaceAll(term, "_", " "))
	case strings.Contains(term, " "):
		variants = append(variants, strings.ReplaceAll(term, " ", "_"))
	}
	return variants
}
