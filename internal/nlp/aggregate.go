package nlp

import (
	"math"
	"sort"

	"github.com/lehdermann/ontomed/internal/logging"
)

// Params are the evidence weights and calibration constants of the
// pipeline.
type Params struct {
	EntityWeight       float64
	DependencyWeight   float64
	KeywordWeight      float64
	Temperature        float64
	MinimumConfidence  float64
	FallbackConfidence float64
	// StaticOverrideThreshold is the static-match confidence at which
	// resolution short-circuits without dynamic scoring.
	StaticOverrideThreshold float64
	AmbiguityEpsilon        float64
}

// DefaultParams returns the tuned production constants.
func DefaultParams() Params {
	return Params{
		EntityWeight:            4.0,
		DependencyWeight:        5.0,
		KeywordWeight:           3.0,
		Temperature:             0.8,
		MinimumConfidence:       0.3,
		FallbackConfidence:      0.3,
		StaticOverrideThreshold: 0.7,
		AmbiguityEpsilon:        0.05,
	}
}

// explanationVerbs mark an utterance as asking for an explanation; a
// medical term alongside one of these doubles the medical-term boost.
var explanationVerbs = []string{"explicar", "definir", "descrever", "detalhar", "conceituar"}

// medicalTagMarkers identify entity tags whose intents relate to medical
// terms.
var medicalTagMarkers = []string{"medical_concept", "term", "conceito_médico", "explanation"}

// Aggregator combines entity, dependency and keyword evidence into raw
// per-intent scores and calibrates them into a probability distribution.
// Calibration happens exactly once per resolution, here.
type Aggregator struct {
	vocab  *VocabularyStore
	scorer *KeywordScorer
	params Params
}

// NewAggregator wires the aggregator to the shared vocabulary and keyword
// scorer.
func NewAggregator(vocab *VocabularyStore, scorer *KeywordScorer, params Params) *Aggregator {
	if params.Temperature <= 0 {
		params.Temperature = 0.8
	}
	return &Aggregator{vocab: vocab, scorer: scorer, params: params}
}

// KeywordScores runs the keyword pass alone, for callers that gather
// evidence concurrently.
func (g *Aggregator) KeywordScores(a *Annotation) map[string]float64 {
	scores := make(map[string]float64)
	g.scorer.Score(a, scores)
	return scores
}

// Aggregate folds all evidence into calibrated scores. Every registered
// intent appears in the result; the fallback intent is seeded with a small
// raw score so an evidence-free utterance still resolves.
func (g *Aggregator) Aggregate(a *Annotation, entities []Entity, depCounts map[string]int, keywordScores map[string]float64) map[string]float64 {
	log := logging.Get(logging.CategoryScoring)
	scores := make(map[string]float64)

	g.scoreEntities(a, entities, scores)
	for intent, count := range depCounts {
		scores[intent] += g.params.DependencyWeight * float64(count)
	}
	for intent, s := range keywordScores {
		scores[intent] += s
	}

	if _, ok := scores[FallbackIntent]; !ok {
		scores[FallbackIntent] = 0.1
	}
	for _, intent := range g.vocab.Intents() {
		if _, ok := scores[intent]; !ok {
			scores[intent] = 0.0
		}
	}

	rawWinner := argmax(scores)
	calibrated := softmax(scores, g.params.Temperature)
	calWinner := argmax(calibrated)
	if rawWinner != calWinner {
		log.Warnw("calibration changed winning intent",
			"raw_winner", rawWinner, "calibrated_winner", calWinner)
	}
	return calibrated
}

// scoreEntities adds entity evidence. Tags bound to an intent score the
// full entity weight; unmapped medical terms spread a boosted weight over
// every medical-term intent, doubled when the utterance carries an
// explanation verb.
func (g *Aggregator) scoreEntities(a *Annotation, entities []Entity, scores map[string]float64) {
	log := logging.Get(logging.CategoryScoring)
	hasExplanationVerb := false
	for _, t := range a.Tokens {
		if containsFold(explanationVerbs, t.Lemma) {
			hasExplanationVerb = true
			break
		}
	}

	for _, e := range entities {
		if intent, ok := g.vocab.IntentForEntity(e.Type); ok {
			scores[intent] += g.params.EntityWeight
			continue
		}
		if e.Type != "termo_medico" {
			continue
		}
		medical := g.vocab.IntentsForTagMarkers(medicalTagMarkers)
		if len(medical) == 0 {
			medical = map[string]struct{}{"concept_explanation": {}}
		}
		boost := 1.5
		if hasExplanationVerb {
			boost = 3.0
			log.Debugw("explanation verb with medical term", "entity", e.Value)
		}
		for intent := range medical {
			scores[intent] += g.params.EntityWeight * boost
		}
	}
}

// Select turns calibrated scores into the final intent: the winner's
// probability plus an entity boost, capped, with the fallback floor
// applied. Near-ties within the ambiguity epsilon are logged.
func (g *Aggregator) Select(calibrated map[string]float64, entities []Entity) Intent {
	log := logging.Get(logging.CategoryScoring)
	if len(calibrated) == 0 {
		return Intent{Name: FallbackIntent, Confidence: g.params.FallbackConfidence, Entities: entities}
	}

	name, score := best(calibrated)
	if runner, gap := runnerUpGap(calibrated, name, score); gap < g.params.AmbiguityEpsilon {
		log.Infow("ambiguous resolution", "winner", name, "runner_up", runner, "gap", gap)
	}

	entityBoost := min(0.2, 0.05*float64(len(entities)))
	var confidence float64
	if (name == "plano_cuidado" || name == "tratamento" || name == "diagnostico") && score > 0.7 {
		confidence = min(0.95, score+entityBoost)
	} else {
		confidence = min(0.9, score+entityBoost)
	}

	if confidence < g.params.MinimumConfidence {
		log.Debugw("confidence below minimum, falling back",
			"intent", name, "confidence", confidence)
		return Intent{Name: FallbackIntent, Confidence: g.params.FallbackConfidence, Entities: entities}
	}
	return Intent{Name: name, Confidence: confidence, Entities: entities}
}

// softmax converts raw scores to a temperature-scaled distribution,
// subtracting the maximum first for numeric stability.
func softmax(scores map[string]float64, temperature float64) map[string]float64 {
	maxScore := math.Inf(-1)
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}
	var sum float64
	for _, s := range scores {
		sum += math.Exp((s - maxScore) / temperature)
	}
	out := make(map[string]float64, len(scores))
	for intent, s := range scores {
		out[intent] = math.Exp((s-maxScore)/temperature) / sum
	}
	return out
}

// argmax returns the highest scoring key; ties break lexicographically so
// resolution is deterministic.
func argmax(scores map[string]float64) string {
	name, _ := best(scores)
	return name
}

func best(scores map[string]float64) (string, float64) {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	bestName, bestScore := "", math.Inf(-1)
	for _, k := range keys {
		if scores[k] > bestScore {
			bestName, bestScore = k, scores[k]
		}
	}
	return bestName, bestScore
}

func runnerUpGap(scores map[string]float64, winner string, winning float64) (string, float64) {
	runner, second := "", math.Inf(-1)
	for k, s := range scores {
		if k != winner && s > second {
			runner, second = k, s
		}
	}
	if runner == "" {
		return "", math.Inf(1)
	}
	return runner, winning - second
}
