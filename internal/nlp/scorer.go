package nlp

import (
	"fmt"
	"strings"

	"github.com/lehdermann/ontomed/internal/logging"
)

// objectRelations are the dependency labels accepted as a verb's object.
var objectRelations = []string{"dobj", "obj", "attr", "pobj"}

// KeywordScorer accumulates keyword evidence for every registered intent.
// Registration expands and analyzes vocabulary through the annotator;
// scoring runs purely on cached analysis and the utterance annotation, so
// concurrent Score calls never touch the annotator.
type KeywordScorer struct {
	vocab     *VocabularyStore
	annotator Annotator
	weight    float64
}

// NewKeywordScorer returns a scorer with the given keyword evidence weight.
func NewKeywordScorer(vocab *VocabularyStore, annotator Annotator, weight float64) *KeywordScorer {
	return &KeywordScorer{vocab: vocab, annotator: annotator, weight: weight}
}

// UpdateKeywords registers keywords for an intent, expanding them with
// decomposed words, words derived from the intent's entity tags and learned
// n-grams, then caches the analysis of every expanded keyword. Safe to call
// repeatedly with the same input.
func (s *KeywordScorer) UpdateKeywords(intent string, keywords []string) error {
	if intent == "" {
		return fmt.Errorf("update keywords: empty intent")
	}
	log := logging.Get(logging.CategoryVocabulary)

	expanded := make(map[string]struct{})
	ordered := make([]string, 0, len(keywords)*4)
	add := func(w string) {
		w = strings.TrimSpace(w)
		if w == "" {
			return
		}
		if _, dup := expanded[w]; dup {
			return
		}
		expanded[w] = struct{}{}
		ordered = append(ordered, w)
	}

	for _, kw := range keywords {
		add(kw)
		words, err := s.decompose(kw)
		if err != nil {
			return fmt.Errorf("update keywords for %q: %w", intent, err)
		}
		for _, w := range words {
			add(w)
		}
	}

	for _, w := range s.entityDerivedKeywords(intent) {
		add(w)
	}

	base := append([]string(nil), ordered...)
	for _, kw := range base {
		grams, err := s.ngrams(kw, 3)
		if err != nil {
			return fmt.Errorf("update keywords for %q: %w", intent, err)
		}
		for _, g := range grams {
			add(g)
		}
	}

	analysis := make(map[string]KeywordAnalysis, len(ordered))
	for _, kw := range ordered {
		if s.vocab.HasKeyword(intent, kw) {
			continue
		}
		an, err := s.analyze(kw)
		if err != nil {
			return fmt.Errorf("analyze keyword %q: %w", kw, err)
		}
		analysis[kw] = an
	}

	s.vocab.AddKeywords(intent, ordered, analysis)
	log.Infow("intent keywords updated",
		"intent", intent, "original", len(keywords), "expanded", len(ordered))
	return nil
}

// decompose splits a keyword on underscores and spaces and keeps the
// content words: longer than two bytes, not a stopword, not punctuation.
func (s *KeywordScorer) decompose(keyword string) ([]string, error) {
	a, err := s.annotatePhrase(keyword)
	if err != nil {
		return nil, err
	}
	var out []string
	seen := make(map[string]struct{})
	for _, t := range a.Tokens {
		if t.IsStop || t.IsPunct || len(strings.TrimSpace(t.Surface)) <= 2 {
			continue
		}
		w := strings.ToLower(t.Surface)
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out, nil
}

// entityDerivedKeywords turns the intent's entity tags into keywords:
// prefixes stripped, underscores opened into spaces, both the whole tag and
// its individual words.
func (s *KeywordScorer) entityDerivedKeywords(intent string) []string {
	var out []string
	for _, tag := range s.vocab.EntityTagsFor(intent) {
		if len(tag) <= 3 {
			continue
		}
		clean := tag
		for _, prefix := range []string{"INTENT_", "TYPE_", "ENTITY_"} {
			clean = strings.TrimPrefix(clean, prefix)
		}
		phrase := strings.ToLower(strings.ReplaceAll(clean, "_", " "))
		out = append(out, strings.Fields(phrase)...)
		out = append(out, phrase)
	}
	return out
}

// ngrams yields the learned n-grams of one keyword: noun chunks spanning
// more than one token, plus runs of adjacent content tokens from length 2
// up to maxN.
func (s *KeywordScorer) ngrams(keyword string, maxN int) ([]string, error) {
	if !strings.Contains(keyword, " ") && !strings.Contains(keyword, "_") {
		return nil, nil
	}
	a, err := s.annotatePhrase(keyword)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, c := range a.NounChunks {
		if c.End-c.Start > 1 && c.Text != "" {
			out = append(out, c.Text)
		}
	}
	var content []Token
	for _, t := range a.Tokens {
		if !t.IsStop && !t.IsPunct {
			content = append(content, t)
		}
	}
	for n := 2; n <= maxN && n <= len(content); n++ {
		for i := 0; i+n <= len(content); i++ {
			// Only runs that are adjacent in the original text.
			if content[i+n-1].Index-content[i].Index != n-1 {
				continue
			}
			parts := make([]string, n)
			for j := 0; j < n; j++ {
				parts[j] = content[i+j].Surface
			}
			out = append(out, strings.Join(parts, " "))
		}
	}
	return out, nil
}

// analyze produces the cached analysis for one keyword.
func (s *KeywordScorer) analyze(keyword string) (KeywordAnalysis, error) {
	a, err := s.annotatePhrase(keyword)
	if err != nil {
		return KeywordAnalysis{}, err
	}
	an := KeywordAnalysis{Total: 0}
	for _, t := range a.Tokens {
		if t.IsPunct {
			continue
		}
		an.Total++
		if !t.IsStop {
			an.Significant = append(an.Significant, t.Lemma)
		}
		switch t.POS {
		case "VERB":
			an.Verbs = append(an.Verbs, t.Lemma)
		case "NOUN", "PROPN":
			an.Nouns = append(an.Nouns, t.Lemma)
		}
	}
	// Stopword-only keywords keep their full lemma list so they are not
	// silently unmatchable.
	if len(an.Significant) == 0 {
		for _, t := range a.Tokens {
			if !t.IsPunct {
				an.Significant = append(an.Significant, t.Lemma)
			}
		}
	}
	an.VerbObjects = verbObjects(a)
	return an, nil
}

// annotatePhrase annotates a keyword, going through the shared lemma cache
// only for the significant-lemma lookup path; full analysis always
// annotates.
func (s *KeywordScorer) annotatePhrase(keyword string) (*Annotation, error) {
	phrase := strings.ToLower(strings.ReplaceAll(keyword, "_", " "))
	a, err := s.annotator.Annotate(phrase)
	if err != nil {
		return nil, err
	}
	var sig []string
	for _, t := range a.Tokens {
		if !t.IsStop && !t.IsPunct {
			sig = append(sig, t.Lemma)
		}
	}
	s.vocab.CacheLemmas(keyword, sig)
	return a, nil
}

// verbObjects extracts (verb lemma, object lemma) pairs: a VERB token plus
// a direct dependent with an object relation and nominal POS.
func verbObjects(a *Annotation) [][2]string {
	var out [][2]string
	for i, t := range a.Tokens {
		if t.POS != "VERB" {
			continue
		}
		for _, child := range a.Children(i, objectRelations...) {
			c := a.Tokens[child]
			if c.POS == "NOUN" || c.POS == "PROPN" {
				out = append(out, [2]string{t.Lemma, c.Lemma})
			}
		}
	}
	return out
}

// Score accumulates raw keyword evidence for every intent into scores.
// Three passes per intent: full keyword matches with a stopword-discounted
// weight, partial matches of compound keywords gated by verb-object
// structure, and significant-word overlap.
func (s *KeywordScorer) Score(a *Annotation, scores map[string]float64) {
	log := logging.Get(logging.CategoryScoring)

	textVerbObjects := verbObjects(a)
	contentLemmas := make(map[string]struct{})
	for _, t := range a.Tokens {
		if !t.IsStop {
			contentLemmas[t.Lemma] = struct{}{}
		}
	}
	allLemmas := make(map[string]struct{}, len(a.Tokens))
	for _, t := range a.Tokens {
		allLemmas[t.Lemma] = struct{}{}
	}

	for _, intent := range s.vocab.Intents() {
		keywords := s.vocab.Keywords(intent)

		matched := 0
		for _, kw := range keywords {
			an, ok := s.vocab.Analysis(intent, kw)
			if !ok {
				// Unanalyzed keywords fall back to raw containment.
				if strings.Contains(strings.ToLower(a.Text), strings.ToLower(kw)) {
					matched++
					scores[intent] += s.weight
				}
				continue
			}
			if !allIn(an.Significant, contentLemmas) {
				continue
			}
			matched++
			// Keywords diluted by stopwords earn a discounted weight,
			// never below half.
			factor := 1.0
			if len(an.Significant) < an.Total && an.Total > 0 {
				factor = max(0.5, float64(len(an.Significant))/float64(an.Total))
			}
			scores[intent] += s.weight * factor
		}
		if matched >= 2 {
			bonus := s.weight * (1 + 0.3*min(float64(matched), 5))
			scores[intent] += bonus
			log.Debugw("multi-keyword bonus", "intent", intent, "matches", matched, "bonus", bonus)
		}

		for _, kw := range keywords {
			if !strings.Contains(kw, " ") {
				continue
			}
			an, ok := s.vocab.Analysis(intent, kw)
			if !ok {
				continue
			}
			var matching []string
			for _, lemma := range an.Significant {
				if _, hit := contentLemmas[lemma]; hit {
					matching = append(matching, lemma)
				}
			}
			if len(matching) == 0 || len(an.Significant) == 0 {
				continue
			}
			ratio := float64(len(matching)) / float64(len(an.Significant))
			if ratio < 0.4 {
				continue
			}
			var bonus float64
			switch {
			case ratio >= 0.7:
				bonus = 1.5
			case ratio >= 0.5:
				bonus = 1.2
			default:
				bonus = 1.0
			}

			// Verb-object gating: a keyword with its own verb-object
			// structure only scores fully when the utterance carries a
			// compatible pair.
			if len(an.Verbs) > 0 && len(an.Nouns) > 0 {
				match, perfect, object := verbObjectMatch(an, textVerbObjects)
				switch {
				case !match:
					bonus = 0.05
				case perfect && s.vocab.IsCharacteristicNoun(intent, object):
					bonus = 3.0
				case perfect:
					bonus = 2.5
				}
			}

			scores[intent] += s.weight * ratio * bonus
		}

		significant := make(map[string]struct{})
		for _, kw := range keywords {
			an, ok := s.vocab.Analysis(intent, kw)
			if !ok {
				continue
			}
			for _, lemma := range an.Significant {
				if len(lemma) > 3 {
					significant[lemma] = struct{}{}
				}
			}
		}
		if len(significant) > 0 {
			found := 0
			for lemma := range significant {
				if _, hit := allLemmas[lemma]; hit {
					found++
				}
			}
			if found > 0 {
				ratio := min(float64(found)/float64(len(significant)), 0.9)
				score := s.weight * ratio * 1.2
				if found >= 2 {
					score *= 1 + 0.1*min(float64(found), 5)
				}
				scores[intent] += score
			}
		}
	}
}

// verbObjectMatch checks the keyword's verbs and nouns against the
// utterance's verb-object pairs. Objects match on equality or shared
// prefix; perfect means both verb and object are exact.
func verbObjectMatch(an KeywordAnalysis, textPairs [][2]string) (match, perfect bool, object string) {
	for _, verb := range an.Verbs {
		for _, noun := range an.Nouns {
			for _, pair := range textPairs {
				if verb != pair[0] {
					continue
				}
				obj := pair[1]
				if noun == obj || strings.HasPrefix(obj, noun) || strings.HasPrefix(noun, obj) {
					match = true
					object = obj
					if noun == obj {
						return true, true, obj
					}
				}
			}
		}
	}
	return match, perfect, object
}

func allIn(lemmas []string, set map[string]struct{}) bool {
	if len(lemmas) == 0 {
		return false
	}
	for _, l := range lemmas {
		if _, ok := set[l]; !ok {
			return false
		}
	}
	return true
}
