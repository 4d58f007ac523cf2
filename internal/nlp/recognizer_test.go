package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func annotate(t *testing.T, text string) *Annotation {
	t.Helper()
	a, err := newFakeAnnotator().Annotate(text)
	require.NoError(t, err)
	return a
}

func entityValues(ents []Entity) []string {
	out := make([]string, len(ents))
	for i, e := range ents {
		out[i] = e.Value
	}
	return out
}

func TestRecognizerPatternMatching(t *testing.T) {
	v := NewVocabularyStore()
	v.AddPatterns([]EntityPattern{
		{Label: "termo_medico", Surface: "diabetes", Provenance: ProvenanceOntology},
		{Label: "termo_medico", Surface: "diabetes tipo 2", Provenance: ProvenanceOntology},
	})
	r := NewRecognizer(v)

	t.Run("longest span wins", func(t *testing.T) {
		ents := r.Tag(annotate(t, "explique diabetes tipo 2"))
		vals := entityValues(ents)
		assert.Contains(t, vals, "diabetes tipo 2")
		assert.NotContains(t, vals, "diabetes")
	})

	t.Run("matches respect word boundaries", func(t *testing.T) {
		v := NewVocabularyStore()
		v.AddPatterns([]EntityPattern{
			{Label: "termo_medico", Surface: "diabete", Provenance: ProvenanceOntology},
		})
		ents := NewRecognizer(v).matchPatterns(annotate(t, "paciente com diabetes"))
		assert.Empty(t, ents)
	})

	t.Run("later registration shadows earlier on equal spans", func(t *testing.T) {
		v := NewVocabularyStore()
		v.AddPatterns([]EntityPattern{
			{Label: "termo_medico", Surface: "glicemia", Provenance: ProvenanceOntology},
			{Label: "INTENT_EXAME", Surface: "glicemia", Provenance: ProvenanceDynamic},
		})
		ents := NewRecognizer(v).matchPatterns(annotate(t, "verificar glicemia"))
		require.Len(t, ents, 1)
		assert.Equal(t, "INTENT_EXAME", ents[0].Type)
	})
}

func TestRecognizerMedicalTermFallback(t *testing.T) {
	r := NewRecognizer(NewVocabularyStore())

	ents := r.Tag(annotate(t, "explique o conceito de hipertensão"))
	vals := entityValues(ents)
	assert.Contains(t, vals, "hipertensão")
	// Scaffolding and command words never become medical terms.
	assert.NotContains(t, vals, "explique")
	assert.NotContains(t, vals, "conceito")
}

func TestRecognizerAnnotatorSpans(t *testing.T) {
	f := newFakeAnnotator()
	f.spans["paciente tem asma"] = []EntitySpan{
		{Start: 2, End: 3, Label: "DISEASE"},
		{Start: 0, End: 1, Label: "MISC"},
	}
	a, err := f.Annotate("paciente tem asma")
	require.NoError(t, err)

	ents := NewRecognizer(NewVocabularyStore()).annotatorEntities(a)
	require.Len(t, ents, 2)
	assert.Equal(t, Entity{Value: "asma", Type: "termo_medico", Start: 13, End: 17}, ents[0])
	assert.Equal(t, "paciente", ents[1].Value, "generic labels are accepted for longer spans")
}

func TestRecognizerTagForIntent(t *testing.T) {
	r := NewRecognizer(NewVocabularyStore())

	t.Run("treatment scaffold filtered, term anchored", func(t *testing.T) {
		ents := r.TagForIntent(annotate(t, "Qual o tratamento para hipertensão?"), "tratamento")
		vals := entityValues(ents)
		assert.Contains(t, vals, "hipertensão")
		assert.NotContains(t, vals, "tratamento")
	})

	t.Run("care plan anchors multi-word terms", func(t *testing.T) {
		ents := r.TagForIntent(annotate(t, "plano de cuidados para diabetes gestacional"), "plano_cuidado")
		assert.Contains(t, entityValues(ents), "diabetes gestacional")
	})
}

func TestAnchoredTerm(t *testing.T) {
	tests := []struct {
		text   string
		intent string
		want   string
	}{
		{"qual o tratamento para hipertensão", "tratamento", "hipertensão"},
		{"como tratar asma", "tratamento", "asma"},
		{"plano de cuidado para diabetes", "plano_cuidado", "diabetes"},
		{"como cuidar de idosos", "plano_cuidado", "idosos"},
		{"tratamento para tratamentos", "tratamento", ""},
		{"explique diabetes", "tratamento", ""},
		{"qual o tratamento para asma", "desconhecido", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AnchoredTerm(tt.text, tt.intent), "%s / %s", tt.text, tt.intent)
	}
}

func TestDedupe(t *testing.T) {
	ents := Dedupe([]Entity{
		{Value: "Diabetes", Type: "termo_medico"},
		{Value: "diabetes", Type: "termo_medico"},
		{Value: "ok", Type: "termo_medico"},
		{Value: "asma", Type: "termo_medico"},
	})
	assert.Equal(t, []string{"Diabetes", "asma"}, entityValues(ents),
		"case-insensitive duplicates and short values are dropped")
}
