package postgres

import (
	"testing"

	"studybuddy-client/internal/domain"
)

func TestDecodeArtifactMalformedRowIsTransportError(t *testing.T) {
	var quizzes []domain.RawQuiz
	err := decodeArtifact(KindQuizzes, []byte(`{"not":"a list"}`), &quizzes)
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if !domain.IsTransport(err) {
		t.Fatalf("expected transport error, got %T: %v", err, err)
	}
	if domain.IsValidation(err) {
		t.Fatalf("decode failure must not look like a validation error")
	}
}

func TestDecodeArtifact(t *testing.T) {
	var plan []domain.RawPlanItem
	if err := decodeArtifact(KindPlan, []byte(`[{"topic":"Cells","status":"done"}]`), &plan); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(plan) != 1 || plan[0].Topic != "Cells" {
		t.Fatalf("unexpected plan %+v", plan)
	}
}
