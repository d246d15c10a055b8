package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"studybuddy-client/internal/app"
	"studybuddy-client/internal/config"
	"studybuddy-client/internal/infra/backend"
	"studybuddy-client/internal/infra/memory"
	openaichat "studybuddy-client/internal/infra/openai"
	pgloader "studybuddy-client/internal/infra/postgres"
	redisinfra "studybuddy-client/internal/infra/redis"
	"studybuddy-client/internal/infra/schedule"
	"studybuddy-client/internal/logger"
)

// components holds everything a command needs, built from one config.
type components struct {
	cfg     config.Config
	log     *logger.Logger
	backend *backend.Client
	service *app.StudyService
	closers []func()
}

func buildComponents(ctx context.Context, configPath string) (*components, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, err
	}
	c := &components{cfg: cfg, log: log}
	c.closers = append(c.closers, log.Sync)

	c.backend = backend.New(backend.Options{
		BaseURL:        cfg.Backend.BaseURL,
		Timeout:        config.TTLDuration(cfg.Backend.Timeout, config.DefaultTimeout),
		LongTimeout:    config.TTLDuration(cfg.Backend.LongTimeout, config.DefaultLongTimeout),
		GenerateMethod: cfg.Backend.GenerateMethod,
	}, log)

	var source app.ArtifactSource = c.backend
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			c.Close()
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		c.closers = append(c.closers, pool.Close)
		source = pgloader.NewArtifactLoader(pool)
		log.Info("reading artifacts from postgres")
	}

	artifactTTL := config.TTLDuration(cfg.Artifacts.TTL, 10*time.Minute)
	var sessions app.ReviewSessionRepository
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, func() { _ = client.Close() })
		source = redisinfra.NewArtifactCache(client, source, artifactTTL)
		sessions = redisinfra.NewSessionStore(client, config.TTLDuration(cfg.Redis.TTL, 30*time.Minute))
	} else {
		source = memory.NewArtifactCache(source, artifactTTL)
		sessions = memory.NewSessionStore()
	}

	ticker := schedule.NewTicker(log)
	c.closers = append(c.closers, ticker.Stop)
	c.service = app.NewStudyService(source, sessions, ticker, log)
	return c, nil
}

// Close releases resources in reverse order of acquisition.
func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func (c *components) assistant() (app.Assistant, error) {
	switch strings.ToLower(c.cfg.Chat.Provider) {
	case "", "backend":
		return c.backend, nil
	case "openai":
		if c.cfg.Chat.APIKey == "" {
			return nil, fmt.Errorf("chat provider openai needs an api key (OPENAI_API_KEY)")
		}
		return openaichat.NewAssistant(c.cfg.Chat.APIKey, c.cfg.Chat.Model, c.studyMaterial), nil
	default:
		return nil, fmt.Errorf("unknown chat provider %q", c.cfg.Chat.Provider)
	}
}

func (c *components) orchestrator() *app.Orchestrator {
	return app.NewOrchestrator(c.backend, c.backend, c.cfg.Upload.Extensions, c.log)
}

// studyMaterial grounds direct model answers in the loaded flashcards and quizzes.
func (c *components) studyMaterial(string) string {
	var b strings.Builder
	for _, card := range c.service.Flashcards() {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", card.Question, card.Answer)
	}
	for _, quiz := range c.service.Quizzes() {
		if !quiz.HasCorrectAnswer() {
			continue
		}
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", quiz.Question, quiz.CorrectAnswer)
		if quiz.Explanation != "" {
			fmt.Fprintf(&b, "%s\n", quiz.Explanation)
		}
		b.WriteString("\n")
	}
	return b.String()
}
