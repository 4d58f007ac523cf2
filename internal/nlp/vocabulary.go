package nlp

import (
	"strings"
	"sync"

	"github.com/lehdermann/ontomed/internal/logging"
)

// KeywordAnalysis is the cached linguistic analysis of one keyword,
// computed once at registration time so scoring never re-annotates
// vocabulary.
type KeywordAnalysis struct {
	// Significant is the keyword's non-stopword lemmas.
	Significant []string
	// Total is the keyword's full lemma count, stopwords included.
	Total int
	// VerbObjects are (verb lemma, object lemma) pairs from the
	// keyword's own parse.
	VerbObjects [][2]string
	// Verbs and Nouns are the keyword's verb and noun lemmas.
	Verbs []string
	Nouns []string
}

// intentKeywords is the per-intent keyword record kept by the vocabulary.
// expanded is the original keyword list plus decomposed words, entity-tag
// derived words and learned n-grams. characteristicNouns is the set of
// nouns that typify the intent, consulted by verb-object gating.
type intentKeywords struct {
	expanded            []string
	expandedSet         map[string]struct{}
	analysis            map[string]KeywordAnalysis
	characteristicNouns map[string]struct{}
}

// genericActionVerbs never count as characteristic nouns of an intent.
var genericActionVerbs = map[string]struct{}{
	"listar": {}, "mostrar": {}, "exibir": {}, "ver": {},
}

// VocabularyStore holds every piece of runtime-learned vocabulary: per-intent
// keyword sets, the phrase lemma cache, the entity-tag-to-intent map and the
// ordered entity pattern set. One store is shared by the whole pipeline and
// is safe for concurrent use: scoring takes read locks, learning takes the
// write lock.
//
// The lemma cache grows without bound for the lifetime of the store. Keyword
// registration is idempotent and template vocabularies are finite, so the
// cache is bounded in practice by the deployed template set; callers that
// feed it unbounded input should recreate the store periodically.
type VocabularyStore struct {
	mu sync.RWMutex

	keywords map[string]*intentKeywords // intent -> keywords
	// lemmaCache maps a raw phrase to its significant (non-stopword)
	// lemmas as produced by the annotator.
	lemmaCache map[string][]string
	// entityIntents maps an entity tag or alias variant to the intent it
	// signals. Later registrations win; collisions are logged.
	entityIntents map[string]string
	// patterns is the ordered entity pattern set. Static entries come
	// first, then ontology entries (replaced wholesale on refresh), then
	// dynamic entries.
	patterns []EntityPattern
}

// NewVocabularyStore returns an empty store.
func NewVocabularyStore() *VocabularyStore {
	return &VocabularyStore{
		keywords:      make(map[string]*intentKeywords),
		lemmaCache:    make(map[string][]string),
		entityIntents: make(map[string]string),
	}
}

// Intents returns the names of every intent with registered keywords.
func (v *VocabularyStore) Intents() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.keywords))
	for name := range v.keywords {
		out = append(out, name)
	}
	return out
}

// Keywords returns a copy of the expanded keyword list for intent.
func (v *VocabularyStore) Keywords(intent string) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	kw, ok := v.keywords[intent]
	if !ok {
		return nil
	}
	out := make([]string, len(kw.expanded))
	copy(out, kw.expanded)
	return out
}

// HasKeyword reports whether intent already carries the exact keyword.
func (v *VocabularyStore) HasKeyword(intent, keyword string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	kw, ok := v.keywords[intent]
	if !ok {
		return false
	}
	_, ok = kw.expandedSet[keyword]
	return ok
}

// AddKeywords appends the given keywords to intent, skipping duplicates.
// analysis maps each keyword to its cached linguistic analysis (entries for
// keywords that were already present refresh the cache). Characteristic
// nouns accumulate from every keyword's noun lemmas.
func (v *VocabularyStore) AddKeywords(intent string, words []string, analysis map[string]KeywordAnalysis) {
	v.mu.Lock()
	defer v.mu.Unlock()
	kw := v.keywords[intent]
	if kw == nil {
		kw = &intentKeywords{
			expandedSet:         make(map[string]struct{}),
			analysis:            make(map[string]KeywordAnalysis),
			characteristicNouns: make(map[string]struct{}),
		}
		v.keywords[intent] = kw
	}
	for _, w := range words {
		if _, dup := kw.expandedSet[w]; dup {
			continue
		}
		kw.expandedSet[w] = struct{}{}
		kw.expanded = append(kw.expanded, w)
	}
	for k, an := range analysis {
		kw.analysis[k] = an
		for _, noun := range an.Nouns {
			noun = strings.ToLower(noun)
			if _, generic := genericActionVerbs[noun]; !generic {
				kw.characteristicNouns[noun] = struct{}{}
			}
		}
	}
}

// Analysis returns the cached analysis for one keyword of intent.
func (v *VocabularyStore) Analysis(intent, keyword string) (KeywordAnalysis, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	kw, ok := v.keywords[intent]
	if !ok {
		return KeywordAnalysis{}, false
	}
	an, ok := kw.analysis[keyword]
	return an, ok
}

// IsCharacteristicNoun reports whether lemma typifies the given intent.
func (v *VocabularyStore) IsCharacteristicNoun(intent, lemma string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	kw, ok := v.keywords[intent]
	if !ok {
		return false
	}
	_, ok = kw.characteristicNouns[strings.ToLower(lemma)]
	return ok
}

// CachedLemmas returns the cached lemmas for phrase, if present.
func (v *VocabularyStore) CachedLemmas(phrase string) ([]string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	l, ok := v.lemmaCache[phrase]
	return l, ok
}

// CacheLemmas stores the lemmas for phrase.
func (v *VocabularyStore) CacheLemmas(phrase string, lemmas []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lemmaCache[phrase] = lemmas
}

// LemmaCacheSize returns the number of cached phrases.
func (v *VocabularyStore) LemmaCacheSize() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.lemmaCache)
}

// MapEntityIntent binds an entity tag (or alias variant) to an intent.
// A rebinding to a different intent overwrites the previous entry and is
// logged; last write wins.
func (v *VocabularyStore) MapEntityIntent(tag, intent string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if prev, ok := v.entityIntents[tag]; ok && prev != intent {
		logging.Get(logging.CategoryVocabulary).Warnw("entity tag rebound",
			"tag", tag, "previous_intent", prev, "intent", intent)
	}
	v.entityIntents[tag] = intent
}

// EntityTagsFor returns every entity tag currently bound to intent.
func (v *VocabularyStore) EntityTagsFor(intent string) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []string
	for tag, bound := range v.entityIntents {
		if bound == intent {
			out = append(out, tag)
		}
	}
	return out
}

// IntentsForTagMarkers returns the set of intents bound to any entity tag
// whose lowercased key contains one of the markers.
func (v *VocabularyStore) IntentsForTagMarkers(markers []string) map[string]struct{} {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]struct{})
	for tag, intent := range v.entityIntents {
		lower := strings.ToLower(tag)
		for _, m := range markers {
			if strings.Contains(lower, m) {
				out[intent] = struct{}{}
				break
			}
		}
	}
	return out
}

// IntentForEntity returns the intent signalled by an entity tag.
func (v *VocabularyStore) IntentForEntity(tag string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	intent, ok := v.entityIntents[tag]
	return intent, ok
}

// AddPatterns appends entity patterns, skipping malformed entries (empty
// label or surface) and entries already present with the same label,
// surface and provenance, so re-registration never grows the pattern set.
// Returns the number actually added.
func (v *VocabularyStore) AddPatterns(ps []EntityPattern) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	added := 0
	for _, p := range ps {
		if p.Label == "" || strings.TrimSpace(p.Surface) == "" {
			logging.Get(logging.CategoryVocabulary).Warnw("skipping malformed entity pattern",
				"label", p.Label, "surface", p.Surface)
			continue
		}
		if v.hasPatternLocked(p) {
			continue
		}
		v.patterns = append(v.patterns, p)
		added++
	}
	return added
}

func (v *VocabularyStore) hasPatternLocked(p EntityPattern) bool {
	for _, q := range v.patterns {
		if q.Label == p.Label && q.Provenance == p.Provenance && strings.EqualFold(q.Surface, p.Surface) {
			return true
		}
	}
	return false
}

// ReplaceOntologyPatterns atomically swaps every ontology-provenance pattern
// for the given set, leaving static and dynamic entries untouched and in
// their original relative order.
func (v *VocabularyStore) ReplaceOntologyPatterns(ps []EntityPattern) {
	v.mu.Lock()
	defer v.mu.Unlock()
	kept := v.patterns[:0]
	for _, p := range v.patterns {
		if p.Provenance != ProvenanceOntology {
			kept = append(kept, p)
		}
	}
	v.patterns = kept
	for _, p := range ps {
		if p.Label == "" || strings.TrimSpace(p.Surface) == "" {
			continue
		}
		p.Provenance = ProvenanceOntology
		v.patterns = append(v.patterns, p)
	}
}

// Patterns returns a copy of the ordered pattern set.
func (v *VocabularyStore) Patterns() []EntityPattern {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]EntityPattern, len(v.patterns))
	copy(out, v.patterns)
	return out
}
