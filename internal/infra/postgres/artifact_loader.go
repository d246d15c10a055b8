package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"studybuddy-client/internal/domain"
)

// Artifact kinds stored in study_artifacts.kind.
const (
	KindFlashcards = "flashcards"
	KindQuizzes    = "quizzes"
	KindPlan       = "plan"
)

// ArtifactLoader reads generated collections from the study_artifacts JSONB
// table the generator writes to. A missing row is an empty collection.
type ArtifactLoader struct {
	pool *pgxpool.Pool
}

func NewArtifactLoader(pool *pgxpool.Pool) *ArtifactLoader {
	return &ArtifactLoader{pool: pool}
}

func (l *ArtifactLoader) FetchFlashcards(ctx context.Context) ([]domain.FlashCard, error) {
	var cards []domain.FlashCard
	if err := l.load(ctx, KindFlashcards, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

func (l *ArtifactLoader) FetchQuizzes(ctx context.Context) ([]domain.RawQuiz, error) {
	var quizzes []domain.RawQuiz
	if err := l.load(ctx, KindQuizzes, &quizzes); err != nil {
		return nil, err
	}
	return quizzes, nil
}

func (l *ArtifactLoader) FetchPlan(ctx context.Context) ([]domain.RawPlanItem, error) {
	var plan []domain.RawPlanItem
	if err := l.load(ctx, KindPlan, &plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (l *ArtifactLoader) load(ctx context.Context, kind string, dst any) error {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM study_artifacts WHERE kind=$1`, kind).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return domain.NewTransportError("load "+kind, 0, err)
	}
	return decodeArtifact(kind, raw, dst)
}

// decodeArtifact unmarshals a stored collection. A row the generator wrote in
// an unexpected shape is reported as a transport failure, like a bad response body.
func decodeArtifact(kind string, raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.NewTransportError("load "+kind, 0, fmt.Errorf("decode: %w", err))
	}
	return nil
}
