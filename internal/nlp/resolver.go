package nlp

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lehdermann/ontomed/internal/logging"
)

// resolutionState tracks an utterance through the pipeline, for logging.
type resolutionState string

const (
	stateNew           resolutionState = "new"
	stateAnnotated     resolutionState = "annotated"
	stateStaticCheck   resolutionState = "static_check"
	stateDynamic       resolutionState = "dynamic_evidence"
	stateAggregated    resolutionState = "aggregated"
	stateSpecialReview resolutionState = "special_case_review"
	stateResolved      resolutionState = "resolved"
)

// ConversationContext carries what the previous turn resolved to.
type ConversationContext struct {
	PreviousIntent   string   `json:"previous_intent"`
	PreviousEntities []string `json:"previous_entities"`
}

// relationshipKeywords force the relationships intent whenever present.
var relationshipKeywords = []string{
	"relacionamento", "relação", "relacionamentos", "relações", "conexão", "ligação",
}

var (
	helpPattern      = regexp.MustCompile(`(?i)\b(ajuda|help|comandos)\b`)
	treatmentPattern = regexp.MustCompile(`(?i)\b(tratamento|tratamentos|tratar)\b`)
)

// Resolver drives an utterance from raw text to a resolved intent:
// annotation, static check, parallel dynamic evidence, one aggregation and
// calibration pass, then special-case review. A resolver keeps one
// conversation's context and is safe for concurrent use.
type Resolver struct {
	annotator  Annotator
	vocab      *VocabularyStore
	recognizer *Recognizer
	static     *StaticMatcher
	deps       *DependencyMatcher
	aggregator *Aggregator
	learner    *Learner
	params     Params

	mu      sync.Mutex
	convCtx ConversationContext
}

// NewResolver assembles the pipeline around one shared vocabulary and
// seeds it with the built-in intents.
func NewResolver(annotator Annotator, vocab *VocabularyStore, learnStore RegistrationStore, params Params) *Resolver {
	scorer := NewKeywordScorer(vocab, annotator, params.KeywordWeight)
	seedStaticIntents(vocab, scorer)
	return &Resolver{
		annotator:  annotator,
		vocab:      vocab,
		recognizer: NewRecognizer(vocab),
		static:     NewStaticMatcher(vocab),
		deps:       NewDependencyMatcher(),
		aggregator: NewAggregator(vocab, scorer, params),
		learner:    NewLearner(vocab, scorer, learnStore),
		params:     params,
	}
}

// Learner exposes the resolver's learner for registration flows.
func (r *Resolver) Learner() *Learner { return r.learner }

// DependencyMatcher exposes the matcher for custom pattern registration.
func (r *Resolver) DependencyMatcher() *DependencyMatcher { return r.deps }

// StaticMatcher exposes the static matcher for custom pattern registration.
func (r *Resolver) StaticMatcher() *StaticMatcher { return r.static }

// RegisterDynamicIntent learns a template-derived intent.
func (r *Resolver) RegisterDynamicIntent(ctx context.Context, di DynamicIntent) error {
	return r.learner.Learn(ctx, di)
}

// Context returns the current conversation context.
func (r *Resolver) Context() ConversationContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.convCtx
}

// ResetContext clears the conversation context.
func (r *Resolver) ResetContext() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convCtx = ConversationContext{}
}

// Resolve maps one utterance to an intent. On annotator failure the
// fallback intent is returned along with the error, so callers can still
// answer the turn.
func (r *Resolver) Resolve(ctx context.Context, text string) (Intent, error) {
	log := logging.Get(logging.CategoryResolver).With("trace_id", uuid.NewString())
	log.Infow("resolving utterance", "state", stateNew, "text", text)

	a, err := r.annotator.Annotate(text)
	if err != nil {
		log.Errorw("annotation failed", "error", err)
		return Intent{Name: FallbackIntent, Confidence: r.params.FallbackConfidence}, err
	}
	log.Debugw("utterance annotated", "state", stateAnnotated, "tokens", len(a.Tokens))

	if m := r.static.Detect(a); m != nil && m.Confidence >= r.params.StaticOverrideThreshold {
		log.Infow("static intent override", "state", stateStaticCheck,
			"intent", m.Intent, "confidence", m.Confidence)
		// Static detections resolve as-is; special-case review only
		// follows the scoring path.
		resolved := Intent{
			Name:       m.Intent,
			Confidence: m.Confidence,
			Entities:   r.recognizer.TagForIntent(a, m.Intent),
		}
		r.commit(log, resolved)
		return resolved, nil
	}

	var (
		entities []Entity
		depRes   MatchResult
		kwScores map[string]float64
	)
	eg, _ := errgroup.WithContext(ctx)
	eg.Go(func() error {
		entities = r.recognizer.Tag(a)
		return nil
	})
	eg.Go(func() error {
		depRes = r.deps.Match(a)
		return nil
	})
	eg.Go(func() error {
		kwScores = r.aggregator.KeywordScores(a)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return Intent{Name: FallbackIntent, Confidence: r.params.FallbackConfidence}, err
	}
	entities = Dedupe(append(entities, depRes.Entities...))
	log.Debugw("dynamic evidence gathered", "state", stateDynamic,
		"entities", len(entities), "dependency_matches", len(depRes.Counts))

	calibrated := r.aggregator.Aggregate(a, entities, depRes.Counts, kwScores)
	intent := r.aggregator.Select(calibrated, entities)
	log.Infow("evidence aggregated", "state", stateAggregated,
		"intent", intent.Name, "confidence", intent.Confidence)

	// Refine entities with intent-specific extraction once a winner is
	// known.
	intent.Entities = Dedupe(append(intent.Entities, r.recognizer.TagForIntent(a, intent.Name)...))

	resolved := r.review(log, text, intent)
	r.commit(log, resolved)
	return resolved, nil
}

// review applies the special-case overrides that outrank scoring.
func (r *Resolver) review(log *zap.SugaredLogger, text string, intent Intent) Intent {
	lower := strings.ToLower(text)

	if intent.Name != "relacionamentos" {
		for _, kw := range relationshipKeywords {
			if strings.Contains(lower, kw) {
				log.Infow("special case: relationship wording", "state", stateSpecialReview,
					"previous_intent", intent.Name)
				return Intent{Name: "relacionamentos", Confidence: 0.95, Entities: intent.Entities}
			}
		}
	}

	if helpPattern.MatchString(lower) {
		log.Infow("special case: help wording", "state", stateSpecialReview,
			"previous_intent", intent.Name)
		return Intent{Name: "ajuda", Confidence: 0.9, Entities: intent.Entities}
	}

	if treatmentPattern.MatchString(lower) && strings.Contains(lower, "para") && intent.Confidence < 0.9 {
		log.Infow("special case: treatment wording", "state", stateSpecialReview,
			"previous_intent", intent.Name)
		filtered := filterValues(append([]Entity(nil), intent.Entities...),
			"tratamento", "tratamentos", "o tratamento")
		if term, ts, te := anchoredTerm(text, "tratamento"); term != "" && !hasValue(filtered, term) {
			filtered = append(filtered, Entity{Value: term, Type: "termo_medico", Start: ts, End: te})
		}
		return Intent{Name: "tratamento", Confidence: 0.95, Entities: filtered}
	}

	return intent
}

// commit finalizes a resolution: context update and the closing log line.
func (r *Resolver) commit(log *zap.SugaredLogger, intent Intent) {
	r.mu.Lock()
	r.convCtx.PreviousIntent = intent.Name
	values := make([]string, len(intent.Entities))
	for i, e := range intent.Entities {
		values[i] = e.Value
	}
	r.convCtx.PreviousEntities = values
	r.mu.Unlock()

	log.Infow("utterance resolved", "state", stateResolved,
		"intent", intent.Name, "confidence", intent.Confidence, "entities", len(intent.Entities))
}

func hasValue(ents []Entity, v string) bool {
	for _, e := range ents {
		if strings.EqualFold(e.Value, v) {
			return true
		}
	}
	return false
}
