package nlp

import (
	"strings"
	"sync"

	"github.com/lehdermann/ontomed/internal/logging"
)

// PatternNode is one constraint of a dependency pattern. The first node of
// a pattern is the anchor and matches any token satisfying its constraints;
// every other node must be a direct dependent of the node named by LeftID.
// Empty constraint slices match anything.
type PatternNode struct {
	ID     string
	LeftID string
	Lemma  []string
	POS    []string
	Dep    []string
	Lower  []string
	// Target marks the node whose token is extracted as a medical term
	// when the pattern matches.
	Target bool
}

// DependencyPattern is a connected constraint graph over the dependency
// parse, bound to the intent it evidences.
type DependencyPattern struct {
	Intent string
	Nodes  []PatternNode
}

// DependencyMatcher matches constraint-graph patterns against annotated
// utterances and counts matches per intent. Safe for concurrent reads;
// pattern registration takes the write lock.
type DependencyMatcher struct {
	mu       sync.RWMutex
	patterns []DependencyPattern
}

// NewDependencyMatcher returns a matcher preloaded with the built-in
// Portuguese patterns.
func NewDependencyMatcher() *DependencyMatcher {
	m := &DependencyMatcher{}
	m.Add(defaultDependencyPatterns()...)
	return m
}

// Add registers patterns, skipping malformed ones: a pattern needs an
// intent, at least one node, a unique ID per node and a LeftID that names
// an earlier node.
func (m *DependencyMatcher) Add(patterns ...DependencyPattern) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	added := 0
	for _, p := range patterns {
		if !validPattern(p) {
			logging.Get(logging.CategoryPerception).Warnw("skipping malformed dependency pattern",
				"intent", p.Intent, "nodes", len(p.Nodes))
			continue
		}
		m.patterns = append(m.patterns, p)
		added++
	}
	return added
}

func validPattern(p DependencyPattern) bool {
	if p.Intent == "" || len(p.Nodes) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(p.Nodes))
	for i, n := range p.Nodes {
		if n.ID == "" {
			return false
		}
		if _, dup := seen[n.ID]; dup {
			return false
		}
		if i == 0 {
			if n.LeftID != "" {
				return false
			}
		} else if _, ok := seen[n.LeftID]; !ok {
			return false
		}
		seen[n.ID] = struct{}{}
	}
	return true
}

// MatchResult is the outcome of running the matcher over one annotation.
type MatchResult struct {
	// Counts is the number of matched patterns per intent.
	Counts map[string]int
	// Entities are the tokens bound to target nodes of matched patterns.
	Entities []Entity
}

// Match runs every pattern over the annotation.
func (m *DependencyMatcher) Match(a *Annotation) MatchResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := MatchResult{Counts: make(map[string]int)}
	for _, p := range m.patterns {
		bindings := matchPattern(a, p)
		if len(bindings) == 0 {
			continue
		}
		res.Counts[p.Intent] += len(bindings)
		for _, b := range bindings {
			for i, n := range p.Nodes {
				if !n.Target {
					continue
				}
				t := a.Tokens[b[i]]
				res.Entities = append(res.Entities, Entity{
					Value: t.Surface,
					Type:  "termo_medico",
					Start: t.Offset,
					End:   t.End(),
				})
			}
		}
	}
	return res
}

// matchPattern returns every complete binding of pattern nodes to token
// indices. Nodes bind in order; node i attaches as a direct dependent of
// the token bound to its LeftID.
func matchPattern(a *Annotation, p DependencyPattern) [][]int {
	idIndex := make(map[string]int, len(p.Nodes))
	for i, n := range p.Nodes {
		idIndex[n.ID] = i
	}

	var complete [][]int
	var extend func(binding []int)
	extend = func(binding []int) {
		if len(binding) == len(p.Nodes) {
			complete = append(complete, append([]int(nil), binding...))
			return
		}
		node := p.Nodes[len(binding)]
		head := binding[idIndex[node.LeftID]]
		for _, child := range a.Children(head) {
			if nodeMatches(a, node, child) {
				extend(append(binding, child))
			}
		}
	}

	anchor := p.Nodes[0]
	for i := range a.Tokens {
		if nodeMatches(a, anchor, i) {
			extend([]int{i})
		}
	}
	return complete
}

func nodeMatches(a *Annotation, n PatternNode, idx int) bool {
	t := a.Tokens[idx]
	if len(n.Lemma) > 0 && !containsFold(n.Lemma, t.Lemma) {
		return false
	}
	if len(n.POS) > 0 && !containsFold(n.POS, t.POS) {
		return false
	}
	if len(n.Lower) > 0 && !containsFold(n.Lower, strings.ToLower(t.Surface)) {
		return false
	}
	if len(n.Dep) > 0 && !containsFold(n.Dep, a.Relation(idx)) {
		return false
	}
	return true
}

// defaultDependencyPatterns is the built-in Portuguese pattern set covering
// the system's core question shapes.
func defaultDependencyPatterns() []DependencyPattern {
	systemTerms := []string{"ontomed", "onto med", "onto-med", "sistema", "aplicação", "ferramenta"}

	return []DependencyPattern{
		// "O que é o OntoMed?"
		{Intent: "sobre_ontomed", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"ser"}},
			{ID: "subject", LeftID: "root", Dep: []string{"nsubj"}},
			{ID: "attr", LeftID: "root", Dep: []string{"attr"}, Lower: systemTerms},
		}},
		// "Explique o OntoMed"
		{Intent: "sobre_ontomed", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"explicar", "descrever", "falar", "contar", "apresentar", "definir"}},
			{ID: "object", LeftID: "root", Dep: []string{"dobj"}, Lower: systemTerms},
		}},
		// "Sobre o OntoMed"
		{Intent: "sobre_ontomed", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"sobre", "acerca", "respeito"}},
			{ID: "pobj", LeftID: "root", Lower: systemTerms},
		}},

		// "O que é X?"
		{Intent: "explicar_termo", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"ser"}},
			{ID: "subject", LeftID: "root", Dep: []string{"nsubj"}},
			{ID: "attr", LeftID: "root", Dep: []string{"attr"}, POS: []string{"NOUN"}, Target: true},
		}},
		// "Explique X"
		{Intent: "explicar_termo", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"explicar"}},
			{ID: "object", LeftID: "root", Dep: []string{"dobj"}, POS: []string{"NOUN"}, Target: true},
		}},
		// "Explicação sobre X"
		{Intent: "explicar_termo", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"explicação"}},
			{ID: "prep", LeftID: "root", Dep: []string{"prep"}, Lemma: []string{"sobre"}},
			{ID: "pobj", LeftID: "prep", Dep: []string{"pobj"}, POS: []string{"NOUN"}, Target: true},
		}},
		// "Definição de X"
		{Intent: "explicar_termo", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"definição"}},
			{ID: "prep", LeftID: "root", Dep: []string{"prep"}, Lemma: []string{"de"}},
			{ID: "pobj", LeftID: "prep", Dep: []string{"pobj"}, POS: []string{"NOUN"}, Target: true},
		}},
		// "Significado de X"
		{Intent: "explicar_termo", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"significado"}},
			{ID: "prep", LeftID: "root", Dep: []string{"prep"}, Lemma: []string{"de"}},
			{ID: "pobj", LeftID: "prep", Dep: []string{"pobj"}, POS: []string{"NOUN"}, Target: true},
		}},

		// "Buscar conceito de X"
		{Intent: "buscar_conceito", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"buscar"}},
			{ID: "dobj", LeftID: "root", Dep: []string{"dobj"}, Lemma: []string{"conceito"}},
			{ID: "prep", LeftID: "dobj", Dep: []string{"prep"}, Lemma: []string{"de"}},
			{ID: "pobj", LeftID: "prep", Dep: []string{"pobj"}, POS: []string{"NOUN"}, Target: true},
		}},
		// "Buscar informação sobre X"
		{Intent: "buscar_conceito", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"buscar"}},
			{ID: "dobj", LeftID: "root", Dep: []string{"dobj"}, Lemma: []string{"informação"}},
			{ID: "prep", LeftID: "dobj", Dep: []string{"prep"}, Lemma: []string{"sobre"}},
			{ID: "pobj", LeftID: "prep", Dep: []string{"pobj"}, POS: []string{"NOUN"}, Target: true},
		}},

		// "Como tratar X?"
		{Intent: "tratamento", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"tratar"}},
			{ID: "dobj", LeftID: "root", Dep: []string{"dobj"}, POS: []string{"NOUN"}, Target: true},
		}},
		// "Tratamento para X"
		{Intent: "tratamento", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"tratamento"}},
			{ID: "prep", LeftID: "root", Dep: []string{"prep"}, Lemma: []string{"para"}},
			{ID: "pobj", LeftID: "prep", Dep: []string{"pobj"}, POS: []string{"NOUN"}, Target: true},
		}},
		// "Tratamento de X"
		{Intent: "tratamento", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"tratamento"}},
			{ID: "prep", LeftID: "root", Dep: []string{"prep"}, Lemma: []string{"de"}},
			{ID: "pobj", LeftID: "prep", Dep: []string{"pobj"}, POS: []string{"NOUN"}, Target: true},
		}},

		// "Plano de cuidado para X"
		{Intent: "plano_cuidado", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"plano"}},
			{ID: "prep_de", LeftID: "root", Dep: []string{"prep"}, Lemma: []string{"de"}},
			{ID: "pobj_cuidado", LeftID: "prep_de", Dep: []string{"pobj"}, Lemma: []string{"cuidado"}},
			{ID: "prep_para", LeftID: "pobj_cuidado", Dep: []string{"prep"}, Lemma: []string{"para"}},
			{ID: "pobj", LeftID: "prep_para", Dep: []string{"pobj"}, POS: []string{"NOUN"}, Target: true},
		}},
		// "Cuidados para X"
		{Intent: "plano_cuidado", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"cuidado"}},
			{ID: "prep", LeftID: "root", Dep: []string{"prep"}, Lemma: []string{"para"}},
			{ID: "pobj", LeftID: "prep", Dep: []string{"pobj"}, POS: []string{"NOUN"}, Target: true},
		}},
		// "Como cuidar de X"
		{Intent: "plano_cuidado", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"cuidar"}},
			{ID: "prep", LeftID: "root", Dep: []string{"prep"}, Lemma: []string{"de"}},
			{ID: "pobj", LeftID: "prep", Dep: []string{"pobj"}, POS: []string{"NOUN"}, Target: true},
		}},

		// "Diagnóstico de X"
		{Intent: "diagnostico", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"diagnóstico"}},
			{ID: "prep", LeftID: "root", Dep: []string{"prep"}, Lemma: []string{"de"}},
			{ID: "pobj", LeftID: "prep", Dep: []string{"pobj"}, POS: []string{"NOUN"}, Target: true},
		}},
		// "Diagnóstico para X"
		{Intent: "diagnostico", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"diagnóstico"}},
			{ID: "prep", LeftID: "root", Dep: []string{"prep"}, Lemma: []string{"para"}},
			{ID: "pobj", LeftID: "prep", Dep: []string{"pobj"}, POS: []string{"NOUN"}, Target: true},
		}},
		// "Como diagnosticar X"
		{Intent: "diagnostico", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"diagnosticar"}},
			{ID: "dobj", LeftID: "root", Dep: []string{"dobj"}, POS: []string{"NOUN"}, Target: true},
		}},

		// "Relações de X"
		{Intent: "relacionamentos", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"relação"}},
			{ID: "prep", LeftID: "root", Dep: []string{"prep"}, Lemma: []string{"de"}},
			{ID: "pobj", LeftID: "prep", Dep: []string{"pobj"}, POS: []string{"NOUN"}, Target: true},
		}},
		// "O que se relaciona com X?"
		{Intent: "relacionamentos", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"relacionar"}},
			{ID: "prep", LeftID: "root", Dep: []string{"prep"}, Lemma: []string{"com"}},
			{ID: "pobj", LeftID: "prep", Dep: []string{"pobj"}, POS: []string{"NOUN"}, Target: true},
		}},
		// "Relacionamentos entre X e Y"
		{Intent: "relacionamentos", Nodes: []PatternNode{
			{ID: "root", Lemma: []string{"relacionamento"}},
			{ID: "prep", LeftID: "root", Dep: []string{"prep"}, Lemma: []string{"entre"}},
			{ID: "pobj", LeftID: "prep", Dep: []string{"pobj"}, POS: []string{"NOUN"}, Target: true},
		}},
	}
}
