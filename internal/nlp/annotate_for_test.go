package nlp

import (
	"strings"
	"sync"
	"unicode"
)

// lexEntry is one word of the test lexicon.
type lexEntry struct {
	lemma string
	pos   string
	stop  bool
}

// testLexicon covers the Portuguese vocabulary the tests exercise. Unknown
// words fall back to a non-stop NOUN lemmatized to their lowercase surface,
// which is how disease and term names behave in the real annotator.
var testLexicon = map[string]lexEntry{
	// determiners, pronouns, prepositions
	"o": {"o", "DET", true}, "a": {"a", "DET", true},
	"os": {"o", "DET", true}, "as": {"a", "DET", true},
	"um": {"um", "DET", true}, "uma": {"um", "DET", true},
	"de": {"de", "ADP", true}, "do": {"de", "ADP", true}, "da": {"de", "ADP", true},
	"dos": {"de", "ADP", true}, "das": {"de", "ADP", true},
	"para": {"para", "ADP", true}, "com": {"com", "ADP", true},
	"em": {"em", "ADP", true}, "no": {"em", "ADP", true}, "na": {"em", "ADP", true},
	"entre": {"entre", "ADP", true}, "sobre": {"sobre", "ADP", true},
	"que": {"que", "PRON", true}, "qual": {"qual", "PRON", true}, "quais": {"quais", "PRON", true},
	"como": {"como", "ADV", true}, "se": {"se", "PRON", true},
	"é": {"ser", "VERB", true}, "são": {"ser", "VERB", true},

	// verbs
	"mostre": {"mostrar", "VERB", false}, "mostrar": {"mostrar", "VERB", false},
	"liste": {"listar", "VERB", false}, "listar": {"listar", "VERB", false},
	"exiba": {"exibir", "VERB", false}, "exibir": {"exibir", "VERB", false},
	"ver": {"ver", "VERB", false}, "veja": {"ver", "VERB", false},
	"explique": {"explicar", "VERB", false}, "explicar": {"explicar", "VERB", false},
	"defina": {"definir", "VERB", false}, "definir": {"definir", "VERB", false},
	"descreva": {"descrever", "VERB", false}, "descrever": {"descrever", "VERB", false},
	"busque": {"buscar", "VERB", false}, "buscar": {"buscar", "VERB", false},
	"verifique": {"verificar", "VERB", false}, "verificar": {"verificar", "VERB", false},
	"tratar": {"tratar", "VERB", false},
	"cuidar": {"cuidar", "VERB", false},
	"crie":   {"criar", "VERB", false}, "criar": {"criar", "VERB", false},
	"gere": {"gerar", "VERB", false}, "gerar": {"gerar", "VERB", false},
	"diagnosticar": {"diagnosticar", "VERB", false},
	"usar":         {"usar", "VERB", false},
	"preciso":      {"precisar", "VERB", false},
	"ajude":        {"ajudar", "VERB", false},

	// nouns
	"relacionamento": {"relacionamento", "NOUN", false}, "relacionamentos": {"relacionamento", "NOUN", false},
	"relação": {"relação", "NOUN", false}, "relações": {"relação", "NOUN", false},
	"termo": {"termo", "NOUN", false}, "termos": {"termo", "NOUN", false},
	"conceito": {"conceito", "NOUN", false}, "conceitos": {"conceito", "NOUN", false},
	"tratamento": {"tratamento", "NOUN", false}, "tratamentos": {"tratamento", "NOUN", false},
	"cuidado": {"cuidado", "NOUN", false}, "cuidados": {"cuidado", "NOUN", false},
	"plano": {"plano", "NOUN", false}, "planos": {"plano", "NOUN", false},
	"ajuda":       {"ajuda", "NOUN", false},
	"help":        {"help", "NOUN", false},
	"comandos":    {"comando", "NOUN", false},
	"capacidades": {"capacidade", "NOUN", false}, "capacidade": {"capacidade", "NOUN", false},
	"diagnóstico": {"diagnóstico", "NOUN", false},
	"paciente":    {"paciente", "NOUN", false},
	"sintomas":    {"sintoma", "NOUN", false},
	"informação":  {"informação", "NOUN", false},
	"significado": {"significado", "NOUN", false},
	"definição":   {"definição", "NOUN", false},
	"explicação":  {"explicação", "NOUN", false},
	"sistema":     {"sistema", "NOUN", false},
	"ontomed":     {"ontomed", "PROPN", false},
	"médicos":     {"médico", "ADJ", false},
}

// fakeAnnotator is a deterministic Annotator for tests: lexicon-driven
// tokens plus a small heuristic dependency builder that covers the question
// shapes the matchers expect. Spans can be injected per text.
type fakeAnnotator struct {
	mu    sync.Mutex
	calls int
	err   error
	spans map[string][]EntitySpan
}

func newFakeAnnotator() *fakeAnnotator {
	return &fakeAnnotator{spans: make(map[string][]EntitySpan)}
}

func (f *fakeAnnotator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAnnotator) Annotate(text string) (*Annotation, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	spans := f.spans[strings.ToLower(text)]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	a := &Annotation{Text: text, Entities: spans}
	a.Tokens = tokenizeForTest(text)
	a.Edges = buildEdgesForTest(a.Tokens)
	a.NounChunks = nounChunksForTest(a)
	return a, nil
}

func tokenizeForTest(text string) []Token {
	var tokens []Token
	i := 0
	for i < len(text) {
		if text[i] == ' ' {
			i++
			continue
		}
		start := i
		for i < len(text) && text[i] != ' ' && !isPunctByte(text[i]) {
			i++
		}
		if i > start {
			surface := text[start:i]
			lower := strings.ToLower(surface)
			entry, ok := testLexicon[lower]
			if !ok {
				entry = lexEntry{lemma: lower, pos: "NOUN"}
			}
			tokens = append(tokens, Token{
				Surface: surface,
				Lemma:   entry.lemma,
				POS:     entry.pos,
				IsStop:  entry.stop,
				Index:   len(tokens),
				Offset:  start,
			})
		}
		for i < len(text) && isPunctByte(text[i]) {
			tokens = append(tokens, Token{
				Surface: text[i : i+1],
				Lemma:   text[i : i+1],
				POS:     "PUNCT",
				IsPunct: true,
				Index:   len(tokens),
				Offset:  i,
			})
			i++
		}
	}
	return tokens
}

func isPunctByte(b byte) bool {
	return b < unicode.MaxASCII && unicode.IsPunct(rune(b)) && b != '-' && b != '_'
}

// buildEdgesForTest approximates a Portuguese dependency parse: the first
// verb (else the first noun) is the root, prepositions attach to the nearest
// preceding nominal or verb, and nominals attach through "pobj"/"dobj"/
// "attr"/"nsubj" the way the production parser labels these questions.
func buildEdgesForTest(tokens []Token) []DependencyEdge {
	root := -1
	for i, t := range tokens {
		if t.POS == "VERB" {
			root = i
			break
		}
	}
	if root < 0 {
		for i, t := range tokens {
			if t.POS == "NOUN" || t.POS == "PROPN" {
				root = i
				break
			}
		}
	}
	if root < 0 {
		root = 0
	}

	var edges []DependencyEdge
	attach := func(head, child int, rel string) {
		edges = append(edges, DependencyEdge{Head: head, Child: child, Relation: rel})
	}
	for i, t := range tokens {
		if i == root {
			continue
		}
		switch t.POS {
		case "PUNCT":
			attach(root, i, "punct")
		case "DET":
			head := root
			for j := i + 1; j < len(tokens); j++ {
				if tokens[j].POS == "NOUN" || tokens[j].POS == "PROPN" {
					head = j
					break
				}
			}
			attach(head, i, "det")
		case "ADP":
			head := root
			for j := i - 1; j >= 0; j-- {
				p := tokens[j].POS
				if p == "NOUN" || p == "PROPN" || p == "VERB" {
					head = j
					break
				}
			}
			attach(head, i, "prep")
		case "NOUN", "PROPN":
			attached := false
			for j := i - 1; j >= 0; j-- {
				if tokens[j].POS == "DET" || tokens[j].POS == "ADJ" {
					continue
				}
				if tokens[j].POS == "ADP" {
					attach(j, i, "pobj")
					attached = true
				}
				break
			}
			if attached {
				continue
			}
			switch {
			case i > root && tokens[root].POS == "VERB" && tokens[root].Lemma == "ser":
				attach(root, i, "attr")
			case i > root && tokens[root].POS == "VERB":
				attach(root, i, "dobj")
			case i < root:
				attach(root, i, "nsubj")
			default:
				attach(root, i, "dep")
			}
		case "PRON":
			if i < root {
				attach(root, i, "nsubj")
			} else {
				attach(root, i, "dobj")
			}
		default:
			attach(root, i, "dep")
		}
	}
	return edges
}

func nounChunksForTest(a *Annotation) []NounChunk {
	var chunks []NounChunk
	i := 0
	for i < len(a.Tokens) {
		if a.Tokens[i].POS != "NOUN" && a.Tokens[i].POS != "PROPN" {
			i++
			continue
		}
		j := i
		for j < len(a.Tokens) && (a.Tokens[j].POS == "NOUN" || a.Tokens[j].POS == "PROPN") {
			j++
		}
		if j-i > 1 {
			chunks = append(chunks, NounChunk{Start: i, End: j, Text: a.SpanText(i, j)})
		}
		i = j
	}
	return chunks
}
