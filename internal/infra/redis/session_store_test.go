package redis

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"studybuddy-client/internal/app"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute)

	session := app.NewReviewSession("review-1", nil, nil)
	defer session.Close()
	store.Save(session)
	if !mr.Exists("study:review:review-1") {
		t.Fatalf("expected redis key to be set")
	}
	if _, ok := store.Get("review-1"); !ok {
		t.Fatalf("expected session present")
	}

	store.Delete("review-1")
	if mr.Exists("study:review:review-1") {
		t.Fatalf("expected redis key to be removed")
	}
	if len(store.All()) != 0 {
		t.Fatalf("expected no live sessions")
	}
}
