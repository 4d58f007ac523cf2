package nlp

import (
	"context"
	"fmt"
	"strings"

	"github.com/lehdermann/ontomed/internal/logging"
)

// RegistrationStore persists dynamic intent registrations so learned
// vocabulary survives restarts.
type RegistrationStore interface {
	SaveRegistration(ctx context.Context, intent DynamicIntent) error
	LoadRegistrations(ctx context.Context) ([]DynamicIntent, error)
}

// intentTagPrefixes are action prefixes that appear inside generated intent
// tags. A tag carrying one also registers under its simplified variant, so
// both "INTENT_CREATE_CARE_PLAN" and "INTENT_CARE_PLAN" resolve.
var intentTagPrefixes = []string{"CREATE_", "GENERATE_", "ANALYZE_", "EXPLAIN_"}

// Learner registers dynamic intents into the shared vocabulary: the
// entity-tag registry (with alias variants), expanded keywords and dynamic
// entity patterns. Learning is serialized by the caller or by the
// vocabulary's own locking; re-learning the same intent is a no-op on
// content.
type Learner struct {
	vocab  *VocabularyStore
	scorer *KeywordScorer
	store  RegistrationStore
}

// NewLearner returns a learner. store may be nil when persistence is
// disabled.
func NewLearner(vocab *VocabularyStore, scorer *KeywordScorer, store RegistrationStore) *Learner {
	return &Learner{vocab: vocab, scorer: scorer, store: store}
}

// Learn registers one dynamic intent and persists the registration.
func (l *Learner) Learn(ctx context.Context, di DynamicIntent) error {
	if err := l.apply(di); err != nil {
		return err
	}
	if l.store != nil {
		if err := l.store.SaveRegistration(ctx, di); err != nil {
			return fmt.Errorf("persist intent %q: %w", di.Name, err)
		}
	}
	return nil
}

// Restore replays every persisted registration into the vocabulary.
func (l *Learner) Restore(ctx context.Context) (int, error) {
	if l.store == nil {
		return 0, nil
	}
	regs, err := l.store.LoadRegistrations(ctx)
	if err != nil {
		return 0, fmt.Errorf("load registrations: %w", err)
	}
	restored := 0
	for _, di := range regs {
		if err := l.apply(di); err != nil {
			logging.Get(logging.CategoryVocabulary).Warnw("skipping persisted intent",
				"intent", di.Name, "error", err)
			continue
		}
		restored++
	}
	return restored, nil
}

// apply wires one registration into the vocabulary without persisting.
func (l *Learner) apply(di DynamicIntent) error {
	name := strings.TrimSpace(di.Name)
	if name == "" {
		return fmt.Errorf("register intent: empty name")
	}
	log := logging.Get(logging.CategoryVocabulary)

	for _, tag := range tagVariants(name) {
		l.vocab.MapEntityIntent(tag, name)
	}
	for _, tag := range di.ExpectedEntities {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		for _, v := range tagVariants(tag) {
			l.vocab.MapEntityIntent(v, name)
		}
	}

	// Entity tags feed the keyword expansion, so the registry updates
	// must land before keywords do.
	keywords := append([]string(nil), di.Keywords...)
	keywords = append(keywords, di.Patterns...)
	if err := l.scorer.UpdateKeywords(name, keywords); err != nil {
		return err
	}

	var patterns []EntityPattern
	for _, kw := range di.Keywords {
		if strings.TrimSpace(kw) == "" {
			continue
		}
		patterns = append(patterns, EntityPattern{
			Label:      canonicalTag(name),
			Surface:    strings.ToLower(strings.ReplaceAll(kw, "_", " ")),
			Provenance: ProvenanceDynamic,
		})
	}
	added := l.vocab.AddPatterns(patterns)

	log.Infow("dynamic intent registered",
		"intent", name, "keywords", len(keywords), "entity_patterns", added)
	return nil
}

// canonicalTag is the entity tag generated for an intent name.
func canonicalTag(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if strings.HasPrefix(upper, "INTENT_") {
		return upper
	}
	return "INTENT_" + upper
}

// tagVariants expands a name into every tag it should resolve under: the
// canonical INTENT_ tag, its bare form and, when an action prefix is
// embedded, the simplified tag with the prefix stripped.
func tagVariants(name string) []string {
	canonical := canonicalTag(name)
	base := strings.TrimPrefix(canonical, "INTENT_")
	variants := []string{canonical, base}
	for _, prefix := range intentTagPrefixes {
		if strings.Contains(base, prefix) {
			simplified := strings.ReplaceAll(base, prefix, "")
			variants = append(variants, "INTENT_"+simplified, simplified)
		}
	}
	return variants
}
