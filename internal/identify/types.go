package identify

import (
	"errors"
	"time"

	"github.com/clintwin/pillfinder/internal/catalog"
	"github.com/clintwin/pillfinder/internal/phrase"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionNotActive = errors.New("session is not active")
	ErrSessionBusy      = errors.New("session has a conflicting update in flight")
	ErrInvalidAnswer    = errors.New("answer is not among the offered options")
	ErrStaleQuestion    = errors.New("answer does not match the current question")
	ErrNoQuestion       = errors.New("session has no pending question")
)

// Session tracks one identification run. Mutated only through the engine's
// submit-answer path while active; terminal states are never left.
type Session struct {
	ID              string
	Status          Status
	Candidates      []catalog.MedicineRecord
	AskedAttributes []string
	Answers         []AnswerRecord
	Confidence      float64
	CreatedAt       time.Time
	LastActivityAt  time.Time

	// Current is the most recently issued question; valueByOption maps its
	// options back to raw domain values for filtering.
	Current       *phrase.Question
	valueByOption map[string]string

	// Result is computed once at termination and frozen for re-fetch.
	Result *Result

	busy bool
}

// AnswerRecord is one entry of the append-only answer history.
type AnswerRecord struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// QuestionState is the caller-facing view of an active session.
type QuestionState struct {
	Type                string          `json:"type"`
	SessionID           string          `json:"session_id,omitempty"`
	Question            phrase.Question `json:"question"`
	RemainingCandidates int             `json:"remaining_candidates"`
	Confidence          float64         `json:"confidence"`
	QuestionsAsked      int             `json:"questions_asked"`
}

// MedicineSummary is the subset of record fields surfaced in results.
// Alternatives only carry id and name.
type MedicineSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	GenericName string `json:"generic_name,omitempty"`
	DosageForm  string `json:"dosage_form,omitempty"`
	MainUse     string `json:"main_use,omitempty"`
	Warnings    string `json:"warnings,omitempty"`
}

// RankedMatch pairs a medicine with its estimated posterior confidence.
type RankedMatch struct {
	Medicine   MedicineSummary `json:"medicine"`
	Confidence float64         `json:"confidence"`
}

// Result is the frozen outcome of a completed session.
type Result struct {
	Type           string         `json:"type"`
	SessionID      string         `json:"session_id,omitempty"`
	Success        bool           `json:"success"`
	TopMatch       *RankedMatch   `json:"top_match"`
	Alternatives   []RankedMatch  `json:"alternatives"`
	Confidence     float64        `json:"confidence"`
	QuestionsAsked int            `json:"questions_asked"`
	AnswersGiven   []AnswerRecord `json:"answers_given"`
	Message        string         `json:"message,omitempty"`
}

// StartResponse is returned when a session is opened. Question is set in the
// normal case; Result is set instead when the catalog is too small to ask
// anything (termination fires before the first question).
type StartResponse struct {
	SessionID           string           `json:"session_id"`
	Question            *phrase.Question `json:"question,omitempty"`
	Result              *Result          `json:"result,omitempty"`
	RemainingCandidates int              `json:"remaining_candidates"`
	Confidence          float64          `json:"confidence"`
	QuestionsAsked      int              `json:"questions_asked"`
}

// AnswerOutcome is either the next question or the final result.
type AnswerOutcome struct {
	Question *QuestionState
	Result   *Result
}

func clone(s *Session) *Session {
	c := *s
	if s.Candidates != nil {
		c.Candidates = make([]catalog.MedicineRecord, len(s.Candidates))
		copy(c.Candidates, s.Candidates)
	}
	if s.AskedAttributes != nil {
		c.AskedAttributes = append([]string(nil), s.AskedAttributes...)
	}
	if s.Answers != nil {
		c.Answers = append([]AnswerRecord(nil), s.Answers...)
	}
	if s.valueByOption != nil {
		c.valueByOption = make(map[string]string, len(s.valueByOption))
		for k, v := range s.valueByOption {
			c.valueByOption[k] = v
		}
	}
	if s.Current != nil {
		q := *s.Current
		q.Options = append([]string(nil), s.Current.Options...)
		c.Current = &q
	}
	// Result is frozen once written; sharing the pointer is safe.
	return &c
}
