package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/advice"
	"github.com/spigell/career-assistant/internal/ai"
	"github.com/spigell/career-assistant/internal/ai/gemini"
	"github.com/spigell/career-assistant/internal/assistant"
	"github.com/spigell/career-assistant/internal/coach"
	"github.com/spigell/career-assistant/internal/events"
	"github.com/spigell/career-assistant/internal/logger"
	"github.com/spigell/career-assistant/internal/matching"
	"github.com/spigell/career-assistant/internal/postings"
	"github.com/spigell/career-assistant/internal/profile"
	"github.com/spigell/career-assistant/internal/retry"
	"github.com/spigell/career-assistant/internal/router"
	"github.com/spigell/career-assistant/internal/secrets"
	"github.com/spigell/career-assistant/internal/session"
	"github.com/spigell/career-assistant/internal/textextract"
)

func retryPolicy(config *Config) retry.Policy {
	policy := retry.DefaultPolicy()
	if config.Retry.Backoff > 0 {
		policy.Backoff = config.Retry.Backoff
	}
	if config.Retry.MaxBackoff > 0 {
		policy.MaxBackoff = config.Retry.MaxBackoff
	}
	if config.Retry.TimeoutFactor > 0 {
		policy.TimeoutFactor = config.Retry.TimeoutFactor
	}
	return policy
}

// newGenerator returns nil when no Gemini key is configured.
func newGenerator(ctx context.Context, config *Config, log *zap.Logger) (ai.Generator, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: config.Gemini.APIKey,
		File:  config.Gemini.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		log.Warn("language model disabled", zap.Error(err),
			zap.String("hint", "set GEMINI_API_KEY or the 'gemini.api_key_file' key in the configuration file"),
		)
		return nil, nil
	}

	client, err := gemini.New(ctx, apiKey, config.Gemini.Model, config.Gemini.MaxLogLength, log)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	aiLogger := logger.WithCommonFields(log, gemini.Provider, client.Model())
	aiLogger.Info("language model enabled")
	return ai.NewRetrying(client, retryPolicy(config), config.Gemini.Timeout, aiLogger), nil
}

// newMatcher returns nil when France Travail credentials are missing.
func newMatcher(config *Config, log *zap.Logger) (assistant.JobMatcher, error) {
	ft := config.FranceTravail
	id, err := secrets.Load(secrets.Source{Name: "france travail client id", Value: ft.ClientID, File: ft.ClientIDFile, Env: "FRANCE_TRAVAIL_CLIENT_ID"})
	if err == nil {
		ft.ClientSecret, err = secrets.Load(secrets.Source{Name: "france travail client secret", Value: ft.ClientSecret, File: ft.ClientSecretFile, Env: "FRANCE_TRAVAIL_CLIENT_SECRET"})
	}
	if err != nil {
		log.Warn("job search disabled", zap.Error(err))
		return nil, nil
	}
	ft.ClientID = id

	client := postings.New(ft.Config, retryPolicy(config), log.Named("postings"))
	matcher, err := matching.New(client, *config.Matching, log.Named("matching"), matching.WithFilters(config.Filters))
	if err != nil {
		return nil, fmt.Errorf("creating matcher: %w", err)
	}
	return matcher, nil
}

func newRegistry(ctx context.Context, config *Config, log *zap.Logger) (*session.Registry, func(), error) {
	idle := config.Session.IdleTimeout
	if config.Session.RedisURL == "" {
		return session.NewRegistry(idle, log, session.WithHistory(session.NewMemoryHistory(idle))), func() {}, nil
	}

	client, err := session.NewRedisClient(ctx, config.Session.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	history, err := session.NewRedisHistory(client, config.Session.RedisPrefix, idle)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	log.Info("mirroring transcripts to redis")
	return session.NewRegistry(idle, log, session.WithHistory(history)), func() { client.Close() }, nil
}

// newService wires the assistant. The returned func releases its connections.
func newService(ctx context.Context, config *Config, log *zap.Logger) (*assistant.Service, func(), error) {
	generator, err := newGenerator(ctx, config, log)
	if err != nil {
		return nil, nil, err
	}

	matcher, err := newMatcher(config, log)
	if err != nil {
		return nil, nil, err
	}

	registry, closeRegistry, err := newRegistry(ctx, config, log)
	if err != nil {
		return nil, nil, fmt.Errorf("creating session registry: %w", err)
	}
	go registry.Run(ctx, 0)

	var publisher events.Publisher = events.Nop{}
	if config.Events.URL != "" {
		amqpPublisher, err := events.DialAMQP(*config.Events, log.Named("events"))
		if err != nil {
			closeRegistry()
			return nil, nil, fmt.Errorf("creating event publisher: %w", err)
		}
		publisher = amqpPublisher
	}

	var classifier router.Classifier
	if generator != nil {
		classifier = router.NewLLMClassifier(generator, 0)
	}

	deps := assistant.Deps{
		Sessions:  registry,
		Router:    router.New(classifier, log.Named("router")),
		Documents: textextract.Default{},
		Profiles:  profile.NewExtractor(generator, config.Gemini.Timeout, log.Named("profile")),
		Matcher:   matcher,
		Coach:     coach.New(generator, config.Gemini.Timeout, log.Named("coach")),
		Adviser:   advice.New(generator, config.Gemini.Timeout, log.Named("advice")),
		Chat:      generator,
		Events:    publisher,
		Logger:    log,
	}
	service := assistant.New(deps)
	cleanup := func() {
		if err := service.Close(context.Background()); err != nil {
			log.Warn("closing assistant", zap.Error(err))
		}
		closeRegistry()
	}
	return service, cleanup, nil
}
