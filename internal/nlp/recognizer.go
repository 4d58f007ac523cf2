package nlp

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/lehdermann/ontomed/internal/logging"
)

// Recognizer is the rule-based entity tagger. It matches the vocabulary's
// surface patterns against the utterance, merges the annotator's base
// entity spans and falls back to bare medical-term tokens, so that every
// resolution path produces entities.
type Recognizer struct {
	vocab *VocabularyStore
}

// NewRecognizer returns a tagger backed by the given vocabulary.
func NewRecognizer(vocab *VocabularyStore) *Recognizer {
	return &Recognizer{vocab: vocab}
}

// nonMedicalTerms are surface forms never tagged as medical terms on their
// own: question scaffolding, command verbs and intent trigger words.
var nonMedicalTerms = map[string]struct{}{
	"conceito": {}, "termo": {}, "definição": {}, "significado": {},
	"o que": {}, "como": {}, "quando": {}, "onde": {}, "por que": {}, "qual": {}, "quais": {},
	"relacionamento": {}, "relacionamentos": {}, "relação": {}, "relações": {}, "entre": {}, "com": {},
	"buscar": {}, "busca": {}, "busque": {}, "procurar": {}, "procure": {}, "encontrar": {}, "encontre": {},
	"listar": {}, "liste": {}, "mostrar": {}, "mostre": {}, "exibir": {}, "exiba": {},
	"explicar": {}, "explique": {}, "definir": {}, "defina": {}, "descrever": {}, "descreva": {},
	"ajuda": {}, "ajudar": {}, "ajude": {}, "socorro": {}, "help": {}, "auxílio": {},
	"capacidades": {}, "funcionalidades": {}, "ações": {}, "recursos": {}, "habilidades": {},
	"plano": {}, "cuidados": {}, "cuidado": {}, "tratamento": {}, "tratamentos": {},
}

// relevantSpanLabels are annotator span labels accepted directly as medical
// terms. Generic labels are accepted only for longer spans.
var relevantSpanLabels = map[string]struct{}{
	"DISEASE": {}, "BODY_PART": {}, "MEDICAL_PROCEDURE": {}, "MEDICATION": {}, "MEDICAL_TERM": {},
}

var genericSpanLabels = map[string]struct{}{
	"MISC": {}, "PER": {}, "ORG": {},
}

// treatmentRegexps anchor the medical term of a treatment question.
var treatmentRegexps = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:tratamentos?)\s+(?:para|de)\s+([^\s.,;?!]+(?:\s+[^\s.,;?!]+)*)`),
	regexp.MustCompile(`(?i)(?:como)\s+(?:tratar)\s+([^\s.,;?!]+(?:\s+[^\s.,;?!]+)*)`),
}

// carePlanRegexps anchor the medical term of a care-plan question.
var carePlanRegexps = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:plano|planos)\s+de\s+(?:cuidados?)\s+(?:para|de)\s+([^\s.,;?!]+(?:\s+[^\s.,;?!]+)*)`),
	regexp.MustCompile(`(?i)(?:cuidados?)\s+(?:para|de)\s+([^\s.,;?!]+(?:\s+[^\s.,;?!]+)*)`),
	regexp.MustCompile(`(?i)(?:como)\s+(?:cuidar)\s+(?:de|do|da)\s+([^\s.,;?!]+(?:\s+[^\s.,;?!]+)*)`),
}

// Tag extracts every entity the tagger can justify from the annotation:
// vocabulary pattern matches, accepted annotator spans and residual
// medical-term tokens, deduplicated case-insensitively.
func (r *Recognizer) Tag(a *Annotation) []Entity {
	ents := r.matchPatterns(a)
	ents = append(ents, r.annotatorEntities(a)...)
	ents = append(ents, r.medicalTerms(a, ents)...)
	return Dedupe(ents)
}

// TagForIntent extracts entities with intent-specific refinement: scaffold
// words of the intent itself are filtered out and anchored expressions pull
// the governed medical term even when tokenization split it apart.
func (r *Recognizer) TagForIntent(a *Annotation, intent string) []Entity {
	ents := r.matchPatterns(a)
	ents = append(ents, r.annotatorEntities(a)...)

	switch intent {
	case "plano_cuidado":
		ents = filterValues(ents, "plano", "planos", "cuidado", "cuidados", "qual o plano", "cuidados para")
		ents = appendAnchored(ents, a.Text, carePlanRegexps, "plano", "planos", "cuidado", "cuidados")
	case "tratamento":
		ents = filterValues(ents, "tratamento", "tratamentos", "o tratamento", "tratar")
		ents = appendAnchored(ents, a.Text, treatmentRegexps, "tratamento", "tratamentos")
	}

	ents = append(ents, r.medicalTerms(a, ents)...)
	return Dedupe(ents)
}

// AnchoredTerm extracts the medical term governed by a treatment or
// care-plan expression, or "" when the text carries none.
func AnchoredTerm(text, intent string) string {
	term, _, _ := anchoredTerm(text, intent)
	return term
}

// anchoredTerm is AnchoredTerm plus the byte offsets of the term in text.
func anchoredTerm(text, intent string) (term string, start, end int) {
	var res []*regexp.Regexp
	var excluded []string
	switch intent {
	case "tratamento":
		res, excluded = treatmentRegexps, []string{"tratamento", "tratamentos"}
	case "plano_cuidado":
		res, excluded = carePlanRegexps, []string{"plano", "planos", "cuidado", "cuidados"}
	default:
		return "", 0, 0
	}
	for _, re := range res {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil || len(loc) < 4 {
			continue
		}
		term := strings.TrimSpace(text[loc[2]:loc[3]])
		if term == "" || containsFold(excluded, term) {
			continue
		}
		return term, loc[2], loc[3]
	}
	return "", 0, 0
}

type candidate struct {
	start, end int
	label      string
	order      int
}

// matchPatterns runs the vocabulary pattern set over the text. Overlapping
// matches resolve to the longest span; among equal spans the later
// registered pattern wins, so dynamic vocabulary can shadow ontology
// vocabulary and ontology can shadow static.
func (r *Recognizer) matchPatterns(a *Annotation) []Entity {
	lower := strings.ToLower(a.Text)
	var cands []candidate
	for i, p := range r.vocab.Patterns() {
		surface := strings.ToLower(p.Surface)
		from := 0
		for {
			idx := strings.Index(lower[from:], surface)
			if idx < 0 {
				break
			}
			start := from + idx
			end := start + len(surface)
			if wordBounded(lower, start, end) {
				cands = append(cands, candidate{start: start, end: end, label: p.Label, order: i})
			}
			from = end
		}
	}
	// Greedy resolution: prefer longer spans, then later registration.
	var ents []Entity
	taken := make([]candidate, 0, len(cands))
	for {
		best := -1
		for i, c := range cands {
			if overlapsAny(c, taken) {
				continue
			}
			if best < 0 {
				best = i
				continue
			}
			b := cands[best]
			if c.end-c.start > b.end-b.start || (c.end-c.start == b.end-b.start && c.order > b.order) {
				best = i
			}
		}
		if best < 0 {
			break
		}
		c := cands[best]
		taken = append(taken, c)
		ents = append(ents, Entity{
			Value: a.Text[c.start:c.end],
			Type:  c.label,
			Start: c.start,
			End:   c.end,
		})
	}
	return ents
}

// annotatorEntities converts accepted base spans into entities. Intent
// marker spans keep their label; medical and accepted generic spans become
// medical terms.
func (r *Recognizer) annotatorEntities(a *Annotation) []Entity {
	var ents []Entity
	for _, sp := range a.Entities {
		if sp.Start < 0 || sp.End > len(a.Tokens) || sp.Start >= sp.End {
			continue
		}
		text := a.SpanText(sp.Start, sp.End)
		if text == "" {
			continue
		}
		start := a.Tokens[sp.Start].Offset
		end := a.Tokens[sp.End-1].End()
		switch {
		case strings.HasPrefix(sp.Label, "INTENT_"):
			ents = append(ents, Entity{Value: text, Type: sp.Label, Start: start, End: end})
		case sp.Label == "termo_medico":
			ents = append(ents, Entity{Value: text, Type: "termo_medico", Start: start, End: end})
		default:
			_, relevant := relevantSpanLabels[sp.Label]
			_, generic := genericSpanLabels[sp.Label]
			if relevant || (generic && len(text) > 3) {
				ents = append(ents, Entity{Value: text, Type: "termo_medico", Start: start, End: end})
			}
		}
	}
	return ents
}

// medicalTerms tags residual content tokens as medical terms: not a
// stopword, not punctuation, longer than two bytes, not scaffolding and
// not already covered by an extracted entity.
func (r *Recognizer) medicalTerms(a *Annotation, existing []Entity) []Entity {
	var ents []Entity
	for _, t := range a.Tokens {
		if t.IsStop || t.IsPunct || len(t.Surface) <= 2 {
			continue
		}
		if _, skip := nonMedicalTerms[strings.ToLower(t.Surface)]; skip {
			continue
		}
		covered := false
		for _, e := range existing {
			if t.Offset >= e.Start && t.End() <= e.End {
				covered = true
				break
			}
		}
		if !covered {
			ents = append(ents, Entity{
				Value: t.Surface,
				Type:  "termo_medico",
				Start: t.Offset,
				End:   t.End(),
			})
		}
	}
	return ents
}

// Dedupe removes case-insensitive duplicate values, keeping first
// occurrence, and drops values of two bytes or fewer.
func Dedupe(ents []Entity) []Entity {
	seen := make(map[string]struct{}, len(ents))
	var out []Entity
	for _, e := range ents {
		key := strings.TrimSpace(strings.ToLower(e.Value))
		if len(key) <= 2 {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}

func filterValues(ents []Entity, excluded ...string) []Entity {
	out := ents[:0]
	for _, e := range ents {
		if !containsFold(excluded, e.Value) {
			out = append(out, e)
		}
	}
	return out
}

func appendAnchored(ents []Entity, text string, res []*regexp.Regexp, excluded ...string) []Entity {
	for _, re := range res {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil || len(loc) < 4 {
			continue
		}
		term := strings.TrimSpace(text[loc[2]:loc[3]])
		if term == "" || containsFold(excluded, term) {
			continue
		}
		dup := false
		for _, e := range ents {
			if strings.EqualFold(e.Value, term) {
				dup = true
				break
			}
		}
		if !dup {
			logging.Get(logging.CategoryPerception).Debugw("anchored medical term", "term", term)
			ents = append(ents, Entity{Value: term, Type: "termo_medico", Start: loc[2], End: loc[3]})
		}
		break
	}
	return ents
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func overlapsAny(c candidate, taken []candidate) bool {
	for _, t := range taken {
		if c.start < t.end && t.start < c.end {
			return true
		}
	}
	return false
}

// wordBounded reports whether [start, end) falls on word boundaries.
func wordBounded(s string, start, end int) bool {
	if start > 0 {
		r := lastRune(s[:start])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(s) {
		r := firstRune(s[end:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	var last rune
	for _, r := range s {
		last = r
	}
	return last
}
