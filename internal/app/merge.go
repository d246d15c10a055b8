package app

import "studybuddy-client/internal/domain"

// MergeBy appends the incoming items whose key is not already present.
// It always returns a new slice; neither input is modified. Existing items
// keep their order, and duplicates inside incoming are dropped too.
func MergeBy[T any](existing, incoming []T, key func(T) string) []T {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]T, 0, len(existing)+len(incoming))
	for _, item := range existing {
		seen[key(item)] = struct{}{}
		out = append(out, item)
	}
	for _, item := range incoming {
		k := key(item)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}

// MergeQuizzes merges newly fetched quizzes into the collection, keyed by question text.
func MergeQuizzes(existing, incoming []domain.QuizItem) []domain.QuizItem {
	return MergeBy(existing, incoming, func(q domain.QuizItem) string { return q.Question })
}
