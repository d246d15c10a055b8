package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"studybuddy-client/internal/app"
	"studybuddy-client/internal/domain"
	pgloader "studybuddy-client/internal/infra/postgres"
	pgmigrations "studybuddy-client/internal/infra/postgres/migrations"
	infraredis "studybuddy-client/internal/infra/redis"
)

func TestReviewFromSharedArtifactsEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openMigrated(t, ctx, pgURL)
	defer db.Close()
	seedArtifact(t, ctx, db, pgloader.KindFlashcards, []domain.FlashCard{{Question: "ATP?", Answer: "Energy currency"}})
	seedArtifact(t, ctx, db, pgloader.KindQuizzes, []map[string]any{
		{"question": "What is 2 + 2?", "options": "A) 3 B) 4 C) 5", "answer": "B"},
	})
	seedArtifact(t, ctx, db, pgloader.KindPlan, []domain.RawPlanItem{
		{Topic: "Cells", Status: "done"},
		{Topic: "Genetics", Status: "pending"},
	})

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	source := infraredis.NewArtifactCache(redisClient, pgloader.NewArtifactLoader(pool), 5*time.Minute)
	sessions := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	service := app.NewStudyService(source, sessions, nil, nil)

	if err := service.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	quizzes := service.Quizzes()
	if len(quizzes) != 1 || quizzes[0].CorrectAnswer != "4" {
		t.Fatalf("expected normalized quiz with answer 4, got %+v", quizzes)
	}
	if stats := service.Planner(time.Now()).Stats(); stats.CompletionPercent != 50 {
		t.Fatalf("expected 50%% plan completion, got %+v", stats)
	}

	session := service.StartReview()
	if err := session.SelectOption("4"); err != nil {
		t.Fatalf("select: %v", err)
	}
	correctness, err := session.Submit()
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if correctness != app.Correct {
		t.Fatalf("expected correct, got %s", correctness)
	}

	seedArtifact(t, ctx, db, pgloader.KindQuizzes, []map[string]any{
		{"question": "What is 2 + 2?", "options": "A) 3 B) 4 C) 5", "answer": "B"},
		{"question": "Powerhouse of the cell?", "options": []string{"Nucleus", "Mitochondria"}, "correct_answer": "Mitochondria"},
	})
	added, err := service.CheckForNewQuizzes(ctx)
	if err != nil {
		t.Fatalf("check for new quizzes: %v", err)
	}
	if added != 1 || session.Len() != 2 {
		t.Fatalf("expected one new quiz in the live session, got added=%d len=%d", added, session.Len())
	}
	if session.CorrectnessAt(0) != app.Correct {
		t.Fatalf("expected answer state kept after merge, got %s", session.CorrectnessAt(0))
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "study", "POSTGRES_PASSWORD": "studypass", "POSTGRES_DB": "studydb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://study:studypass@%s:%s/studydb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func openMigrated(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedArtifact(t *testing.T, ctx context.Context, db *bun.DB, kind string, collection any) {
	t.Helper()
	data, err := json.Marshal(collection)
	if err != nil {
		t.Fatalf("marshal %s: %v", kind, err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO study_artifacts (kind, data) VALUES (?, ?::jsonb) ON CONFLICT (kind) DO UPDATE SET data=EXCLUDED.data, updated_at=now()`, kind, string(data)); err != nil {
		t.Fatalf("insert %s: %v", kind, err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
