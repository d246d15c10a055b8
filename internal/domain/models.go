package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// OptionSet is the ordered list of answer options for a quiz question.
// Duplicates are allowed and kept.
type OptionSet []string

// QuizItem is a quiz question after normalization. It is never mutated by
// review actions; per-question answer state lives in QuestionState.
type QuizItem struct {
	Question      string    `json:"question"`
	Options       OptionSet `json:"options"`
	CorrectAnswer string    `json:"correctAnswer,omitempty"` // empty when no correct answer is known
	Explanation   string    `json:"explanation,omitempty"`
}

// HasCorrectAnswer reports whether a correct answer was resolved.
func (q QuizItem) HasCorrectAnswer() bool {
	return q.CorrectAnswer != ""
}

// HasOption reports whether option is one of the normalized options.
func (q QuizItem) HasOption(option string) bool {
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}

// QuestionState is the learner's answer state for one quiz index.
type QuestionState struct {
	SelectedOption string `json:"selectedOption,omitempty"`
	Revealed       bool   `json:"revealed"`
}

// FlashCard is a read-only question/answer pair.
type FlashCard struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// PlanStatus is the progress state of a revision topic.
type PlanStatus string

const (
	PlanPending    PlanStatus = "pending"
	PlanInProgress PlanStatus = "in-progress"
	PlanCompleted  PlanStatus = "completed"
)

// ParsePlanStatus maps the generator's free-form status onto PlanStatus.
// "done" is an alias for completed; anything unknown is pending.
func ParsePlanStatus(raw string) PlanStatus {
	switch raw {
	case "completed", "done":
		return PlanCompleted
	case "in-progress":
		return PlanInProgress
	default:
		return PlanPending
	}
}

// PlanItem is one revision topic. Order is its 0-based position in the fetched plan.
type PlanItem struct {
	Topic  string     `json:"topic"`
	Status PlanStatus `json:"status"`
	Order  int        `json:"order"`
}

// ScheduledDay is a calendar date with the plan items that fall on it.
type ScheduledDay struct {
	Date   time.Time  `json:"date"`
	Topics []PlanItem `json:"topics"`
}

// ChatTurn is one question/answer exchange with the assistant.
type ChatTurn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Sources  []string  `json:"sources,omitempty"`
	Failed   bool      `json:"failed,omitempty"`
	AskedAt  time.Time `json:"askedAt"`
}

// UploadState tracks a single file through an ingestion batch.
type UploadState string

const (
	UploadQueued    UploadState = "queued"
	UploadUploading UploadState = "uploading"
	UploadUploaded  UploadState = "uploaded"
	UploadFailed    UploadState = "failed"
)

// UploadFile is a file selected by the learner for ingestion.
type UploadFile struct {
	Name string
	Data []byte
}

// UploadJob is the per-file working state of an ingestion batch.
type UploadJob struct {
	Name      string      `json:"name"`
	SizeBytes int64       `json:"sizeBytes"`
	State     UploadState `json:"state"`
}

// IngestionPhase is the state of an ingestion batch.
type IngestionPhase string

const (
	PhaseIdle       IngestionPhase = "idle"
	PhaseUploading  IngestionPhase = "uploading"
	PhaseGenerating IngestionPhase = "generating"
	PhaseDone       IngestionPhase = "done"
	PhaseFailed     IngestionPhase = "failed"
)

// Terminal reports whether the phase ends a batch.
func (p IngestionPhase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// GenerationEvent is one progress update from the generation step.
type GenerationEvent struct {
	Message  string `json:"message,omitempty"`
	Progress int    `json:"progress,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Failed reports whether the event carries a generation error.
func (e GenerationEvent) Failed() bool {
	return e.Error != ""
}

// Complete reports whether the event marks successful completion.
func (e GenerationEvent) Complete() bool {
	return e.Error == "" && e.Progress >= 100
}

// RawQuiz is a quiz record as produced by the generator.
type RawQuiz struct {
	Question      string     `json:"question"`
	Options       RawOptions `json:"options"`
	CorrectAnswer string     `json:"correct_answer,omitempty"`
	Answer        string     `json:"answer,omitempty"`
	Explanation   string     `json:"explanation,omitempty"`
}

// RawPlanItem is a revision plan entry as produced by the generator.
type RawPlanItem struct {
	Topic    string `json:"topic"`
	ReviseOn string `json:"revise_on,omitempty"`
	Status   string `json:"status,omitempty"`
}

type rawOptionsKind int

const (
	optionsAbsent rawOptionsKind = iota
	optionsStructured
	optionsText
)

// RawOptions holds the options field in whichever shape the generator used:
// absent, an ordered list, or a single string still to be decoded.
type RawOptions struct {
	kind rawOptionsKind
	list []string
	text string
}

// StructuredOptions wraps an already ordered option list.
func StructuredOptions(options []string) RawOptions {
	return RawOptions{kind: optionsStructured, list: options}
}

// TextOptions wraps a single encoded options string.
func TextOptions(text string) RawOptions {
	return RawOptions{kind: optionsText, text: text}
}

// List returns the structured options, if that is the shape held.
func (r RawOptions) List() ([]string, bool) {
	return r.list, r.kind == optionsStructured
}

// Text returns the raw options string, if that is the shape held.
func (r RawOptions) Text() (string, bool) {
	return r.text, r.kind == optionsText
}

// Present reports whether any options field was supplied.
func (r RawOptions) Present() bool {
	return r.kind != optionsAbsent
}

func (r *RawOptions) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*r = TextOptions(t)
	case []any:
		list := make([]string, 0, len(t))
		for _, el := range t {
			if s, ok := el.(string); ok {
				list = append(list, s)
				continue
			}
			list = append(list, fmt.Sprint(el))
		}
		*r = StructuredOptions(list)
	default:
		*r = RawOptions{}
	}
	return nil
}

func (r RawOptions) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case optionsStructured:
		if r.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(r.list)
	case optionsText:
		return json.Marshal(r.text)
	default:
		return []byte("null"), nil
	}
}

// QualityIssue names a non-fatal problem found while normalizing generated data.
type QualityIssue string

const (
	IssueOptionsMissing   QualityIssue = "options_missing"
	IssueOptionsUnparsed  QualityIssue = "options_unparsed"
	IssueAnswerMissing    QualityIssue = "answer_missing"
	IssueAnswerUnmatched  QualityIssue = "answer_unmatched"
	IssueDuplicateDropped QualityIssue = "duplicate_dropped"
)
