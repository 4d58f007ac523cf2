package nlp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestAggregator(v *VocabularyStore) *Aggregator {
	scorer := NewKeywordScorer(v, newFakeAnnotator(), DefaultParams().KeywordWeight)
	return NewAggregator(v, scorer, DefaultParams())
}

func TestSoftmaxIsDistribution(t *testing.T) {
	scores := map[string]float64{
		"a": 12.5, "b": 0, "c": -3.1, "d": 4.8, "e": 4.8,
	}
	out := softmax(scores, 0.8)

	var sum float64
	for intent, p := range out {
		assert.Greater(t, p, 0.0, intent)
		assert.Less(t, p, 1.0, intent)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, out["d"], out["e"], 1e-12, "equal raw scores calibrate equally")
	assert.Greater(t, out["a"], out["d"])
}

func TestSoftmaxLargeScoresStayFinite(t *testing.T) {
	out := softmax(map[string]float64{"a": 5000, "b": 4990}, 0.8)
	for _, p := range out {
		assert.False(t, math.IsNaN(p))
		assert.False(t, math.IsInf(p, 0))
	}
	assert.Greater(t, out["a"], out["b"])
}

func TestArgmaxDeterministic(t *testing.T) {
	scores := map[string]float64{"zeta": 1.0, "alfa": 1.0, "meio": 1.0}
	for i := 0; i < 20; i++ {
		assert.Equal(t, "alfa", argmax(scores))
	}
}

func TestAggregateZeroEvidence(t *testing.T) {
	v := NewVocabularyStore()
	v.AddKeywords("consulta", []string{"glicemia"}, nil)
	v.AddKeywords("tratamento", []string{"tratamento"}, nil)
	g := newTestAggregator(v)

	calibrated := g.Aggregate(annotate(t, "xyzzy"), nil, nil, nil)

	var sum float64
	for _, p := range calibrated {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Contains(t, calibrated, "consulta", "every registered intent appears")
	assert.Contains(t, calibrated, "tratamento")
	assert.Equal(t, FallbackIntent, argmax(calibrated), "the seeded fallback wins without evidence")
}

func TestAggregateEntityEvidence(t *testing.T) {
	v := NewVocabularyStore()
	v.AddKeywords("consulta_exame", []string{"exame"}, nil)
	v.AddKeywords("outra", []string{"outra"}, nil)
	v.MapEntityIntent("INTENT_EXAME", "consulta_exame")
	g := newTestAggregator(v)

	ents := []Entity{{Value: "exame de sangue", Type: "INTENT_EXAME"}}
	calibrated := g.Aggregate(annotate(t, "quero um exame de sangue"), ents, nil, nil)
	assert.Equal(t, "consulta_exame", argmax(calibrated))
}

func TestScoreEntitiesMedicalBoost(t *testing.T) {
	v := NewVocabularyStore()
	g := newTestAggregator(v)
	ents := []Entity{{Value: "hipertensão", Type: "termo_medico"}}

	t.Run("defaults to concept explanation", func(t *testing.T) {
		scores := make(map[string]float64)
		g.scoreEntities(annotate(t, "hipertensão"), ents, scores)
		assert.InDelta(t, 4.0*1.5, scores["concept_explanation"], 1e-9)
	})

	t.Run("explanation verb doubles the boost", func(t *testing.T) {
		scores := make(map[string]float64)
		g.scoreEntities(annotate(t, "explique hipertensão"), ents, scores)
		assert.InDelta(t, 4.0*3.0, scores["concept_explanation"], 1e-9)
	})

	t.Run("marker-bound intents receive the boost instead", func(t *testing.T) {
		v.MapEntityIntent("INTENT_MEDICAL_CONCEPT", "explicar_termo")
		scores := make(map[string]float64)
		g.scoreEntities(annotate(t, "hipertensão"), ents, scores)
		assert.InDelta(t, 4.0*1.5, scores["explicar_termo"], 1e-9)
		assert.Zero(t, scores["concept_explanation"])
	})
}

func TestSelect(t *testing.T) {
	g := newTestAggregator(NewVocabularyStore())

	manyEntities := []Entity{
		{Value: "a1"}, {Value: "a2"}, {Value: "a3"}, {Value: "a4"}, {Value: "a5"},
	}

	t.Run("winner probability plus entity boost", func(t *testing.T) {
		out := g.Select(map[string]float64{"consulta": 0.6, "outro": 0.4},
			[]Entity{{Value: "glicemia"}})
		assert.Equal(t, "consulta", out.Name)
		assert.InDelta(t, 0.65, out.Confidence, 1e-9)
	})

	t.Run("generic cap at 0.9", func(t *testing.T) {
		out := g.Select(map[string]float64{"consulta": 0.85}, manyEntities)
		assert.InDelta(t, 0.9, out.Confidence, 1e-9)
	})

	t.Run("clinical intents cap at 0.95", func(t *testing.T) {
		out := g.Select(map[string]float64{"tratamento": 0.85}, manyEntities)
		assert.Equal(t, "tratamento", out.Name)
		assert.InDelta(t, 0.95, out.Confidence, 1e-9)
	})

	t.Run("clinical cap needs a strong score", func(t *testing.T) {
		out := g.Select(map[string]float64{"tratamento": 0.69}, manyEntities)
		assert.InDelta(t, 0.89, out.Confidence, 1e-9)
	})

	t.Run("below minimum falls back", func(t *testing.T) {
		out := g.Select(map[string]float64{"consulta": 0.2, "outra": 0.15}, nil)
		assert.Equal(t, FallbackIntent, out.Name)
		assert.InDelta(t, 0.3, out.Confidence, 1e-9)
	})

	t.Run("empty scores fall back", func(t *testing.T) {
		out := g.Select(nil, nil)
		assert.Equal(t, FallbackIntent, out.Name)
		assert.InDelta(t, 0.3, out.Confidence, 1e-9)
	})
}
