package app

import (
	"regexp"
	"strings"

	"studybuddy-client/internal/domain"
)

// optionMarker finds "A)" .. "D)" labels at the start of the string or after
// whitespace, a comma or a semicolon.
var optionMarker = regexp.MustCompile(`(?:^|[\s,;])[A-D]\)`)

// answerLetters maps letter-coded answers to option indexes.
var answerLetters = map[string]int{"A": 0, "B": 1, "C": 2, "D": 3}

// NormalizeOptions turns the raw options field into a canonical OptionSet.
// Structured lists pass through unchanged.
func NormalizeOptions(raw domain.RawOptions) domain.OptionSet {
	if list, ok := raw.List(); ok {
		return domain.OptionSet(list)
	}
	text, ok := raw.Text()
	if !ok || strings.TrimSpace(text) == "" {
		return domain.OptionSet{}
	}
	if labelled := splitLabelled(text); len(labelled) > 0 {
		return labelled
	}
	var pieces domain.OptionSet
	for _, p := range strings.Split(text, ",") {
		if p = strings.TrimSpace(p); p != "" {
			pieces = append(pieces, p)
		}
	}
	if len(pieces) > 1 {
		return pieces
	}
	return domain.OptionSet{text}
}

// splitLabelled extracts the text of each "LETTER) text" segment in order.
// Empty segments are kept so letter answers still line up with positions.
func splitLabelled(text string) domain.OptionSet {
	marks := optionMarker.FindAllStringIndex(text, -1)
	if len(marks) == 0 {
		return nil
	}
	out := make(domain.OptionSet, 0, len(marks))
	for i, m := range marks {
		end := len(text)
		if i+1 < len(marks) {
			end = marks[i+1][0]
		}
		out = append(out, strings.Trim(text[m[1]:end], " \t\r\n,;"))
	}
	return out
}

// NormalizeCorrectAnswer resolves the correct answer against normalized options.
// An explicit correct_answer wins; a letter-coded answer maps onto options by
// position and falls back to the raw value when the position does not exist.
// The boolean is false when no correct answer is known.
func NormalizeCorrectAnswer(raw domain.RawQuiz, options domain.OptionSet) (string, bool) {
	if raw.CorrectAnswer != "" {
		return raw.CorrectAnswer, true
	}
	if raw.Answer == "" {
		return "", false
	}
	key := strings.ToUpper(strings.TrimSpace(raw.Answer))
	if idx, ok := answerLetters[key]; ok && idx < len(options) && options[idx] != "" {
		return options[idx], true
	}
	return raw.Answer, true
}

// NormalizeQuiz converts a raw record into a QuizItem and reports any
// data-quality problems found along the way. It never fails.
func NormalizeQuiz(raw domain.RawQuiz) (domain.QuizItem, []domain.QualityIssue) {
	var issues []domain.QualityIssue

	options := NormalizeOptions(raw.Options)
	if !raw.Options.Present() || len(options) == 0 {
		issues = append(issues, domain.IssueOptionsMissing)
	} else if text, ok := raw.Options.Text(); ok && len(options) == 1 && options[0] == text {
		issues = append(issues, domain.IssueOptionsUnparsed)
	}

	item := domain.QuizItem{
		Question:    raw.Question,
		Options:     options,
		Explanation: raw.Explanation,
	}
	answer, ok := NormalizeCorrectAnswer(raw, options)
	switch {
	case !ok:
		issues = append(issues, domain.IssueAnswerMissing)
	case !item.HasOption(answer):
		item.CorrectAnswer = answer
		issues = append(issues, domain.IssueAnswerUnmatched)
	default:
		item.CorrectAnswer = answer
	}
	return item, issues
}

// QuizIssue ties a quality issue to the question it was found on.
type QuizIssue struct {
	Question string
	Issue    domain.QualityIssue
}

// NormalizeQuizzes normalizes a fetched batch in order.
func NormalizeQuizzes(raw []domain.RawQuiz) ([]domain.QuizItem, []QuizIssue) {
	items := make([]domain.QuizItem, 0, len(raw))
	var issues []QuizIssue
	for _, r := range raw {
		item, found := NormalizeQuiz(r)
		for _, issue := range found {
			issues = append(issues, QuizIssue{Question: r.Question, Issue: issue})
		}
		items = append(items, item)
	}
	return items, issues
}

// NormalizePlan assigns each fetched plan entry its order and canonical status.
func NormalizePlan(raw []domain.RawPlanItem) []domain.PlanItem {
	items := make([]domain.PlanItem, 0, len(raw))
	for i, r := range raw {
		items = append(items, domain.PlanItem{
			Topic:  r.Topic,
			Status: domain.ParsePlanStatus(r.Status),
			Order:  i,
		})
	}
	return items
}
