package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVocabularyKeywords(t *testing.T) {
	v := NewVocabularyStore()

	v.AddKeywords("consulta", []string{"verificar glicemia", "glicemia"}, map[string]KeywordAnalysis{
		"verificar glicemia": {
			Significant: []string{"verificar", "glicemia"},
			Total:       2,
			Verbs:       []string{"verificar"},
			Nouns:       []string{"glicemia"},
		},
	})
	v.AddKeywords("consulta", []string{"glicemia", "exame"}, nil)

	assert.ElementsMatch(t, []string{"consulta"}, v.Intents())
	assert.Equal(t, []string{"verificar glicemia", "glicemia", "exame"}, v.Keywords("consulta"),
		"duplicates are skipped, insertion order is kept")
	assert.True(t, v.HasKeyword("consulta", "glicemia"))
	assert.False(t, v.HasKeyword("consulta", "insulina"))

	an, ok := v.Analysis("consulta", "verificar glicemia")
	require.True(t, ok)
	assert.Equal(t, 2, an.Total)
	_, ok = v.Analysis("consulta", "exame")
	assert.False(t, ok)
}

func TestVocabularyCharacteristicNouns(t *testing.T) {
	v := NewVocabularyStore()
	v.AddKeywords("listar_termos", []string{"listar termos"}, map[string]KeywordAnalysis{
		"listar termos": {
			Significant: []string{"listar", "termo"},
			Total:       2,
			Verbs:       []string{"listar"},
			Nouns:       []string{"termo", "Listar"},
		},
	})

	assert.True(t, v.IsCharacteristicNoun("listar_termos", "termo"))
	assert.True(t, v.IsCharacteristicNoun("listar_termos", "TERMO"), "lookup is case-insensitive")
	assert.False(t, v.IsCharacteristicNoun("listar_termos", "listar"),
		"generic action verbs never typify an intent")
	assert.False(t, v.IsCharacteristicNoun("outra", "termo"))
}

func TestVocabularyLemmaCache(t *testing.T) {
	v := NewVocabularyStore()
	_, ok := v.CachedLemmas("plano de cuidado")
	assert.False(t, ok)

	v.CacheLemmas("plano de cuidado", []string{"plano", "cuidado"})
	lemmas, ok := v.CachedLemmas("plano de cuidado")
	require.True(t, ok)
	assert.Equal(t, []string{"plano", "cuidado"}, lemmas)
	assert.Equal(t, 1, v.LemmaCacheSize())
}

func TestVocabularyEntityIntents(t *testing.T) {
	v := NewVocabularyStore()

	v.MapEntityIntent("INTENT_CARE_PLAN", "plano_cuidado")
	v.MapEntityIntent("CARE_PLAN", "plano_cuidado")
	v.MapEntityIntent("INTENT_MEDICAL_CONCEPT", "concept_explanation")

	intent, ok := v.IntentForEntity("INTENT_CARE_PLAN")
	require.True(t, ok)
	assert.Equal(t, "plano_cuidado", intent)
	assert.ElementsMatch(t, []string{"INTENT_CARE_PLAN", "CARE_PLAN"}, v.EntityTagsFor("plano_cuidado"))

	// Rebinding: last write wins.
	v.MapEntityIntent("CARE_PLAN", "tratamento")
	intent, _ = v.IntentForEntity("CARE_PLAN")
	assert.Equal(t, "tratamento", intent)

	medical := v.IntentsForTagMarkers([]string{"medical_concept", "term"})
	assert.Contains(t, medical, "concept_explanation")
	assert.NotContains(t, medical, "plano_cuidado")
}

func TestVocabularyPatterns(t *testing.T) {
	v := NewVocabularyStore()

	added := v.AddPatterns([]EntityPattern{
		{Label: "termo_medico", Surface: "diabetes", Provenance: ProvenanceStatic},
		{Label: "", Surface: "invalid"},
		{Label: "termo_medico", Surface: "   "},
		{Label: "INTENT_X", Surface: "exame de sangue", Provenance: ProvenanceDynamic},
	})
	assert.Equal(t, 2, added, "malformed patterns are skipped")
	require.Len(t, v.Patterns(), 2)

	t.Run("ontology replacement leaves other provenances alone", func(t *testing.T) {
		v.ReplaceOntologyPatterns([]EntityPattern{
			{Label: "termo_medico", Surface: "hipertensão"},
			{Label: "termo_medico", Surface: "asma"},
		})
		ps := v.Patterns()
		require.Len(t, ps, 4)
		assert.Equal(t, "diabetes", ps[0].Surface)
		assert.Equal(t, "exame de sangue", ps[1].Surface)
		assert.Equal(t, ProvenanceOntology, ps[2].Provenance)
		assert.Equal(t, ProvenanceOntology, ps[3].Provenance)

		v.ReplaceOntologyPatterns([]EntityPattern{
			{Label: "termo_medico", Surface: "artrite"},
		})
		ps = v.Patterns()
		require.Len(t, ps, 3)
		assert.Equal(t, "diabetes", ps[0].Surface)
		assert.Equal(t, "exame de sangue", ps[1].Surface)
		assert.Equal(t, "artrite", ps[2].Surface)
	})

	t.Run("duplicates never accumulate", func(t *testing.T) {
		added := v.AddPatterns([]EntityPattern{
			{Label: "termo_medico", Surface: "diabetes", Provenance: ProvenanceStatic},
			{Label: "termo_medico", Surface: "Diabetes", Provenance: ProvenanceStatic},
		})
		assert.Zero(t, added, "dedupe is case-insensitive on the surface")
		assert.Len(t, v.Patterns(), 3)

		added = v.AddPatterns([]EntityPattern{
			{Label: "termo_medico", Surface: "diabetes", Provenance: ProvenanceDynamic},
		})
		assert.Equal(t, 1, added, "same surface under another provenance is distinct")
	})
}
