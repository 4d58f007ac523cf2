package main

import (
	"context"
	"fmt"

	"github.com/lehdermann/ontomed/internal/annotator"
	"github.com/lehdermann/ontomed/internal/config"
	"github.com/lehdermann/ontomed/internal/logging"
	"github.com/lehdermann/ontomed/internal/nlp"
	"github.com/lehdermann/ontomed/internal/ontology"
	"github.com/lehdermann/ontomed/internal/store"
	"github.com/lehdermann/ontomed/internal/templates"
)

// app wires the resolver and its collaborators from configuration. Commands
// build one, use it, and close it.
type app struct {
	resolver *nlp.Resolver
	vocab    *nlp.VocabularyStore
	store    *store.LocalStore
	concepts *nlp.ConceptManager

	stopWatch context.CancelFunc
	watchDone chan struct{}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logging.Get(logging.CategoryResolver)

	timeout, err := cfg.AnnotatorTimeout()
	if err != nil {
		return nil, err
	}
	ann := annotator.New(cfg.Annotator.Endpoint, annotator.WithTimeout(timeout))

	local, err := store.NewLocalStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary store: %w", err)
	}

	vocab := nlp.NewVocabularyStore()
	resolver := nlp.NewResolver(ann, vocab, local, scoringParams(cfg))

	restored, err := resolver.Learner().Restore(ctx)
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("restore registered intents: %w", err)
	}
	if restored > 0 {
		log.Infow("restored registered intents", "count", restored)
	}

	register := func(di nlp.DynamicIntent) error {
		return resolver.RegisterDynamicIntent(ctx, di)
	}
	ts, err := templates.LoadDir(cfg.Templates.Dir)
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("load templates: %w", err)
	}
	if registered := templates.RegisterAll(ts, register); registered > 0 {
		log.Infow("registered template intents", "count", registered)
	}

	ttl, err := cfg.OntologyTTL()
	if err != nil {
		local.Close()
		return nil, err
	}

	a := &app{
		resolver: resolver,
		vocab:    vocab,
		store:    local,
		concepts: nlp.NewConceptManager(ontology.New(cfg.Ontology.Endpoint), vocab, ttl),
	}
	if cfg.Templates.Watch {
		a.startWatcher(cfg.Templates.Dir, register)
	}
	return a, nil
}

// startWatcher re-registers template intents whenever the directory
// changes. An unavailable watcher is not fatal; templates stay as loaded.
func (a *app) startWatcher(dir string, register func(nlp.DynamicIntent) error) {
	log := logging.Get(logging.CategoryTemplates)
	w, err := templates.NewWatcher(dir, func(ts []templates.Template) {
		n := templates.RegisterAll(ts, register)
		log.Infow("templates reloaded", "registered", n)
	})
	if err != nil {
		log.Warnw("template watcher unavailable", "dir", dir, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.stopWatch = cancel
	a.watchDone = make(chan struct{})
	go func() {
		defer close(a.watchDone)
		w.Run(ctx)
	}()
}

// scoringParams maps the configuration onto resolver parameters.
func scoringParams(cfg *config.Config) nlp.Params {
	return nlp.Params{
		EntityWeight:            cfg.Scoring.EntityWeight,
		DependencyWeight:        cfg.Scoring.DependencyWeight,
		KeywordWeight:           cfg.Scoring.KeywordWeight,
		Temperature:             cfg.Scoring.Temperature,
		MinimumConfidence:       cfg.Scoring.MinimumConfidence,
		FallbackConfidence:      cfg.Scoring.FallbackConfidence,
		StaticOverrideThreshold: cfg.Scoring.StaticOverrideThreshold,
		AmbiguityEpsilon:        cfg.Scoring.AmbiguityEpsilon,
	}
}

func (a *app) Close() {
	if a.stopWatch != nil {
		a.stopWatch()
		<-a.watchDone
	}
	if a.store != nil {
		a.store.Close()
	}
}
