package nlp

import (
	"math"
	"strings"
	"sync"

	"github.com/lehdermann/ontomed/internal/logging"
)

// TokenConstraint matches one token of a static pattern. Lemma and Lower
// are alternative surface tests (empty means any); Optional tokens may be
// skipped.
type TokenConstraint struct {
	Lemma    []string
	Lower    []string
	Optional bool
}

func (c TokenConstraint) matches(t Token) bool {
	if len(c.Lemma) > 0 && !containsFold(c.Lemma, t.Lemma) {
		return false
	}
	if len(c.Lower) > 0 && !containsFold(c.Lower, strings.ToLower(t.Surface)) {
		return false
	}
	return true
}

// StaticPattern is one contiguous token sequence evidencing a static
// intent tag.
type StaticPattern struct {
	Tag    string
	Tokens []TokenConstraint
}

// StaticMatch is the best static pattern hit for an utterance.
type StaticMatch struct {
	Tag        string
	Intent     string
	Confidence float64
	Start, End int
}

// StaticMatcher detects the fixed built-in intents through token-sequence
// patterns, before any dynamic scoring runs. Matching is deterministic and
// cheap; a strong enough match short-circuits the pipeline.
type StaticMatcher struct {
	vocab *VocabularyStore

	mu       sync.RWMutex
	patterns []StaticPattern
}

// NewStaticMatcher returns a matcher preloaded with the built-in patterns,
// resolving tags to intents through the vocabulary's entity-intent map.
func NewStaticMatcher(vocab *VocabularyStore) *StaticMatcher {
	m := &StaticMatcher{vocab: vocab}
	m.Add(defaultStaticPatterns()...)
	return m
}

// Add registers patterns, skipping ones with no tag or no tokens.
func (m *StaticMatcher) Add(patterns ...StaticPattern) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range patterns {
		if p.Tag == "" || len(p.Tokens) == 0 {
			logging.Get(logging.CategoryPerception).Warnw("skipping malformed static pattern", "tag", p.Tag)
			continue
		}
		m.patterns = append(m.patterns, p)
	}
}

// Detect returns the strongest static match, or nil when nothing matches.
// Confidence grows with the matched span, min(0.5 + 0.1×tokens, 0.9), plus
// 0.2 (capped at 1.0) when the span covers more than half the utterance.
func (m *StaticMatcher) Detect(a *Annotation) *StaticMatch {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(a.Tokens) == 0 {
		return nil
	}

	var best *StaticMatch
	for _, p := range m.patterns {
		start, end, ok := longestMatch(a, p.Tokens)
		if !ok {
			continue
		}
		span := end - start
		conf := min(0.5+0.1*float64(span), 0.9)
		if float64(span)/float64(len(a.Tokens)) > 0.5 {
			conf = min(conf+0.2, 1.0)
		}
		conf = math.Round(conf*100) / 100
		if best == nil || conf > best.Confidence {
			intent := p.Tag
			if mapped, ok := m.vocab.IntentForEntity(p.Tag); ok {
				intent = mapped
			}
			best = &StaticMatch{Tag: p.Tag, Intent: intent, Confidence: conf, Start: start, End: end}
		}
	}
	if best != nil {
		logging.Get(logging.CategoryPerception).Debugw("static intent matched",
			"intent", best.Intent, "confidence", best.Confidence)
	}
	return best
}

// longestMatch finds the longest contiguous token span matching the
// constraint sequence, trying every start position. Optional constraints
// may be skipped; matched spans never skip utterance tokens.
func longestMatch(a *Annotation, constraints []TokenConstraint) (start, end int, ok bool) {
	bestLen := -1
	for s := 0; s < len(a.Tokens); s++ {
		if n, matched := matchFrom(a, s, constraints); matched && n > bestLen {
			bestLen = n
			start, end = s, s+n
		}
	}
	return start, end, bestLen > 0
}

// matchFrom matches constraints against tokens starting at s, returning
// the number of tokens consumed by the longest complete binding.
func matchFrom(a *Annotation, s int, constraints []TokenConstraint) (int, bool) {
	var rec func(pos, ci int) (int, bool)
	rec = func(pos, ci int) (int, bool) {
		if ci == len(constraints) {
			return pos - s, true
		}
		c := constraints[ci]
		bestLen := -1
		if pos < len(a.Tokens) && c.matches(a.Tokens[pos]) {
			if n, ok := rec(pos+1, ci+1); ok {
				bestLen = n
			}
		}
		if c.Optional {
			if n, ok := rec(pos, ci+1); ok && n > bestLen {
				bestLen = n
			}
		}
		if bestLen < 0 {
			return 0, false
		}
		return bestLen, true
	}
	return rec(s, 0)
}

// staticIntents binds the five built-in intent tags to their names and
// seed keyword sets. Dynamic intents register at runtime through the
// learner.
var staticIntents = []struct {
	tag      string
	intent   string
	keywords []string
}{
	{"INTENT_LIST_TERMS", "listar_termos", []string{
		"listar conceitos", "liste conceitos", "mostrar conceitos", "mostre conceitos",
		"exibir conceitos", "exiba conceitos", "listar termos", "liste termos",
		"mostrar termos", "mostre termos", "exibir termos", "exiba termos",
		"conceitos médicos", "termos médicos",
	}},
	{"INTENT_RELATIONSHIPS", "relacionamentos", []string{
		"relacionamento", "relação", "conexão", "ligação", "associação",
		"como se relaciona", "relacionado com",
	}},
	{"INTENT_CAPABILITIES", "capacidades", []string{
		"capacidades", "funcionalidades", "ações", "recursos", "habilidades",
		"listar capacidades", "liste capacidades", "mostrar capacidades", "mostre capacidades",
		"exibir capacidades", "exiba capacidades", "listar funcionalidades",
		"listar recursos", "listar comandos",
	}},
	{"INTENT_HELP", "ajuda", []string{
		"ajuda", "help", "socorro", "comandos", "suporte", "assistência",
		"usar", "utilizar", "operar",
	}},
	{"INTENT_ABOUT_ONTOMED", "sobre_ontomed", []string{
		"o que é ontomed", "ontomed é", "sobre ontomed", "explique ontomed",
		"descreva ontomed", "fale sobre ontomed", "conte sobre ontomed",
		"apresente ontomed", "defina ontomed", "ontomed significa", "significado de ontomed",
	}},
}

// seedStaticIntents installs the built-in tag bindings and keyword
// vocabulary. Keyword analysis needs the annotator; a failure is logged
// and leaves the tag binding in place, so static detection still resolves
// intent names while the annotator is down.
func seedStaticIntents(vocab *VocabularyStore, scorer *KeywordScorer) {
	log := logging.Get(logging.CategoryVocabulary)
	for _, si := range staticIntents {
		vocab.MapEntityIntent(si.tag, si.intent)
	}
	for _, si := range staticIntents {
		if err := scorer.UpdateKeywords(si.intent, si.keywords); err != nil {
			log.Warnw("static keyword seeding failed", "intent", si.intent, "error", err)
		}
	}
}

// defaultStaticPatterns is the built-in pattern set for the five fixed
// intents.
func defaultStaticPatterns() []StaticPattern {
	relationshipNouns := []string{"relacionamentos", "relações", "relacionamento", "relação"}
	conceptTerms := []string{"termo", "conceito", "termos", "conceitos"}
	capabilityTerms := []string{"capacidade", "função", "recurso", "funcionalidade", "habilidade", "comandos"}
	helpTerms := []string{"ajuda", "help", "socorro", "assistência", "suporte"}
	usageVerbs := []string{"usar", "utilizar", "operar"}
	listVerbs := []string{"listar", "mostrar", "exibir", "ver"}
	systemTerms := []string{"ontomed", "onto med", "onto-med", "sistema", "aplicação", "ferramenta"}
	aboutVerbs := []string{"falar", "contar", "explicar", "dizer", "descrever", "informar", "apresentar"}

	return []StaticPattern{
		// "mostrar relacionamentos de [termo]"
		{Tag: "INTENT_RELATIONSHIPS", Tokens: []TokenConstraint{
			{Lemma: []string{"mostrar", "listar", "ver", "exibir", "quais"}},
			{Lemma: relationshipNouns, Optional: true},
			{Lemma: []string{"de"}, Optional: true},
		}},
		// "quais as relações de [termo]"
		{Tag: "INTENT_RELATIONSHIPS", Tokens: []TokenConstraint{
			{Lower: []string{"quais", "quais são"}},
			{Lower: []string{"as", "os"}, Optional: true},
			{Lemma: relationshipNouns},
			{Lower: []string{"do", "da", "de"}, Optional: true},
		}},
		// "relacionamentos de [termo]"
		{Tag: "INTENT_RELATIONSHIPS", Tokens: []TokenConstraint{
			{Lower: relationshipNouns},
			{Lemma: []string{"de"}, Optional: true},
		}},
		{Tag: "INTENT_RELATIONSHIPS", Tokens: []TokenConstraint{
			{Lower: relationshipNouns},
		}},

		// "listar termos"
		{Tag: "INTENT_LIST_TERMS", Tokens: []TokenConstraint{
			{Lemma: listVerbs},
			{Lemma: conceptTerms},
		}},
		// "termos médicos"
		{Tag: "INTENT_LIST_TERMS", Tokens: []TokenConstraint{
			{Lemma: conceptTerms},
			{Lower: []string{"médico", "médicos"}},
		}},

		{Tag: "INTENT_CAPABILITIES", Tokens: []TokenConstraint{
			{Lemma: listVerbs},
		}},
		{Tag: "INTENT_CAPABILITIES", Tokens: []TokenConstraint{
			{Lemma: capabilityTerms},
		}},
		{Tag: "INTENT_CAPABILITIES", Tokens: []TokenConstraint{
			{Lower: []string{"capacidades"}},
		}},
		{Tag: "INTENT_CAPABILITIES", Tokens: []TokenConstraint{
			{Lemma: listVerbs},
			{Lemma: capabilityTerms},
		}},

		{Tag: "INTENT_HELP", Tokens: []TokenConstraint{
			{Lemma: helpTerms},
		}},
		{Tag: "INTENT_HELP", Tokens: []TokenConstraint{
			{Lemma: usageVerbs},
		}},
		{Tag: "INTENT_HELP", Tokens: []TokenConstraint{
			{Lower: []string{"comandos"}},
		}},
		{Tag: "INTENT_HELP", Tokens: []TokenConstraint{
			{Lemma: []string{"precisar"}},
			{Lemma: helpTerms},
		}},

		{Tag: "INTENT_ABOUT_ONTOMED", Tokens: []TokenConstraint{
			{Lower: systemTerms},
		}},
		{Tag: "INTENT_ABOUT_ONTOMED", Tokens: []TokenConstraint{
			{Lemma: aboutVerbs},
			{Lower: systemTerms},
		}},
		{Tag: "INTENT_ABOUT_ONTOMED", Tokens: []TokenConstraint{
			{Lemma: []string{"sobre", "acerca", "respeito"}},
			{Lower: systemTerms},
		}},
		{Tag: "INTENT_ABOUT_ONTOMED", Tokens: []TokenConstraint{
			{Lemma: []string{"ser"}},
			{Lower: systemTerms},
		}},
		{Tag: "INTENT_ABOUT_ONTOMED", Tokens: []TokenConstraint{
			{Lemma: aboutVerbs},
			{Lower: []string{"sobre", "do", "da"}},
			{Lower: systemTerms},
		}},
		{Tag: "INTENT_ABOUT_ONTOMED", Tokens: []TokenConstraint{
			{Lower: systemTerms},
			{Lemma: []string{"ser"}},
		}},
	}
}
