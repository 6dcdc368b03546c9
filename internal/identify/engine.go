package identify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clintwin/pillfinder/internal/catalog"
	"github.com/clintwin/pillfinder/internal/observability"
	"github.com/clintwin/pillfinder/internal/phrase"
)

// Config bounds a session's question budget and termination thresholds.
type Config struct {
	MaxQuestions        int
	ConfidenceThreshold float64
	MaxAlternatives     int
}

func (c Config) withDefaults() Config {
	if c.MaxQuestions <= 0 {
		c.MaxQuestions = 3
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.90
	}
	if c.MaxAlternatives <= 0 {
		c.MaxAlternatives = 3
	}
	return c
}

// Engine drives identification sessions: it narrows the candidate set on
// each answer, picks the next attribute by information gain, and delegates
// question wording to the phrasing chain.
type Engine struct {
	records  []catalog.MedicineRecord
	sessions *Manager
	phraser  *phrase.Chain
	metrics  *observability.Metrics
	cfg      Config
}

func NewEngine(records []catalog.MedicineRecord, sessions *Manager, phraser *phrase.Chain, metrics *observability.Metrics, cfg Config) (*Engine, error) {
	if len(records) == 0 {
		return nil, catalog.ErrEmptyCatalog
	}
	return &Engine{
		records:  records,
		sessions: sessions,
		phraser:  phraser,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
	}, nil
}

// Start opens a session over the full catalog and issues the first question.
// A catalog too small to split (a single medicine) completes immediately and
// returns a frozen result instead of a question.
func (e *Engine) Start(ctx context.Context) (*StartResponse, error) {
	started := time.Now()
	created := e.sessions.Create(e.records, confidenceFor(len(e.records)))
	sess, err := e.sessions.BeginUpdate(created.ID)
	if err != nil {
		return nil, err
	}

	resp := &StartResponse{SessionID: sess.ID}
	attr, values, ok := bestAttribute(sess.Candidates, nil)
	if len(sess.Candidates) <= 1 || sess.Confidence >= e.cfg.ConfidenceThreshold || !ok {
		sess.Result = e.buildResult(sess)
		sess.Status = StatusCompleted
		e.sessions.Commit(sess)
		e.countEvent("created")
		e.countEvent("completed")
		e.syncActiveGauge()
		resp.Result = sess.Result
		resp.RemainingCandidates = len(sess.Candidates)
		resp.Confidence = sess.Confidence
		return resp, nil
	}

	if err := e.emitQuestion(ctx, sess, attr, values); err != nil {
		e.sessions.Abort(sess.ID)
		_, _ = e.sessions.End(sess.ID)
		return nil, err
	}
	e.sessions.Commit(sess)
	e.countEvent("created")
	e.syncActiveGauge()
	if e.metrics != nil {
		e.metrics.ObserveStage("start_session", time.Since(started))
	}

	q := *sess.Current
	resp.Question = &q
	resp.RemainingCandidates = len(sess.Candidates)
	resp.Confidence = sess.Confidence
	return resp, nil
}

// SubmitAnswer applies one answer to an active session. questionID guards
// against stale or duplicate submissions; an empty questionID accepts the
// current question. Returns either the next question or the final result.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID, questionID, answer string) (*AnswerOutcome, error) {
	started := time.Now()
	sess, err := e.sessions.BeginUpdate(sessionID)
	if err != nil {
		return nil, err
	}
	outcome, err := e.applyAnswer(ctx, sess, questionID, answer)
	if err != nil {
		e.sessions.Abort(sessionID)
		return nil, err
	}
	e.sessions.Commit(sess)
	if e.metrics != nil {
		e.metrics.ObserveStage("submit_answer", time.Since(started))
	}
	return outcome, nil
}

func (e *Engine) applyAnswer(ctx context.Context, sess *Session, questionID, answer string) (*AnswerOutcome, error) {
	cur := sess.Current
	if cur == nil {
		return nil, ErrNoQuestion
	}
	if questionID != "" && questionID != cur.ID {
		return nil, fmt.Errorf("%w: got %q, current is %q", ErrStaleQuestion, questionID, cur.ID)
	}
	canonical, ok := matchOption(cur.Options, answer)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAnswer, answer)
	}

	if value := sess.valueByOption[canonical]; value != "" {
		sess.Candidates = filterByValue(sess.Candidates, cur.Attribute, value)
	}
	sess.Answers = append(sess.Answers, AnswerRecord{QuestionID: cur.ID, Answer: canonical})
	sess.Confidence = confidenceFor(len(sess.Candidates))
	sess.Current = nil
	sess.valueByOption = nil

	if len(sess.Candidates) <= 1 ||
		sess.Confidence >= e.cfg.ConfidenceThreshold ||
		len(sess.Answers) >= e.cfg.MaxQuestions {
		return e.complete(sess), nil
	}
	attr, values, ok := bestAttribute(sess.Candidates, askedSet(sess))
	if !ok {
		return e.complete(sess), nil
	}
	if err := e.emitQuestion(ctx, sess, attr, values); err != nil {
		return nil, err
	}
	return &AnswerOutcome{Question: questionState(sess)}, nil
}

// Get returns a snapshot of the session for read-only inspection.
func (e *Engine) Get(sessionID string) (*Session, error) {
	return e.sessions.Get(sessionID)
}

// End releases the session. Idempotent.
func (e *Engine) End(sessionID string) error {
	s, err := e.sessions.End(sessionID)
	if err != nil {
		return err
	}
	if s != nil {
		e.countEvent("ended")
		e.syncActiveGauge()
	}
	return nil
}

func (e *Engine) complete(sess *Session) *AnswerOutcome {
	sess.Result = e.buildResult(sess)
	sess.Status = StatusCompleted
	e.countEvent("completed")
	e.syncActiveGauge()
	if e.metrics != nil {
		e.metrics.QuestionsPerSession.Observe(float64(len(sess.Answers)))
	}
	return &AnswerOutcome{Result: sess.Result}
}

func (e *Engine) emitQuestion(ctx context.Context, sess *Session, attr catalog.AttributeSpec, values []string) error {
	req := phrase.Request{
		Attribute: attr,
		Values:    values,
		Options:   phrase.OptionsFor(values),
		Asked:     len(sess.Answers),
	}
	started := time.Now()
	q, err := e.phraser.Phrase(ctx, req)
	if e.metrics != nil {
		e.metrics.ObserveQuestionLatency(time.Since(started))
	}
	if err != nil {
		return err
	}

	mapping := make(map[string]string, len(values)+1)
	for _, v := range values {
		mapping[phrase.FormatOption(v)] = v
	}
	mapping[phrase.EscapeOption] = ""
	sess.Current = &q
	sess.valueByOption = mapping
	sess.AskedAttributes = append(sess.AskedAttributes, attr.Name)
	return nil
}

func (e *Engine) buildResult(sess *Session) *Result {
	r := &Result{
		Type:           "result",
		SessionID:      sess.ID,
		QuestionsAsked: len(sess.Answers),
		AnswersGiven:   append([]AnswerRecord(nil), sess.Answers...),
	}
	n := len(sess.Candidates)
	if n == 0 {
		r.Message = "no medicine in the catalog matches the answers given"
		return r
	}

	conf := confidenceFor(n)
	r.Success = true
	r.Confidence = conf
	top := sess.Candidates[0]
	r.TopMatch = &RankedMatch{
		Medicine: MedicineSummary{
			ID:          top.ID,
			Name:        top.Name,
			GenericName: top.GenericName,
			DosageForm:  top.DosageForm,
			MainUse:     top.MainUse,
			Warnings:    top.Warnings,
		},
		Confidence: conf,
	}
	for i := 1; i < n && i <= e.cfg.MaxAlternatives; i++ {
		alt := sess.Candidates[i]
		r.Alternatives = append(r.Alternatives, RankedMatch{
			Medicine:   MedicineSummary{ID: alt.ID, Name: alt.Name},
			Confidence: conf,
		})
	}
	return r
}

func (e *Engine) countEvent(event string) {
	if e.metrics != nil {
		e.metrics.SessionEvents.WithLabelValues(event).Inc()
	}
}

func (e *Engine) syncActiveGauge() {
	if e.metrics != nil {
		e.metrics.ActiveSessions.Set(float64(e.sessions.ActiveCount()))
	}
}

func questionState(sess *Session) *QuestionState {
	return &QuestionState{
		Type:                "question",
		SessionID:           sess.ID,
		Question:            *sess.Current,
		RemainingCandidates: len(sess.Candidates),
		Confidence:          sess.Confidence,
		QuestionsAsked:      len(sess.Answers),
	}
}

func confidenceFor(n int) float64 {
	if n == 0 {
		return 0
	}
	return 1 / float64(n)
}

func askedSet(sess *Session) map[string]bool {
	set := make(map[string]bool, len(sess.AskedAttributes))
	for _, a := range sess.AskedAttributes {
		set[a] = true
	}
	return set
}

func matchOption(options []string, answer string) (string, bool) {
	for _, opt := range options {
		if strings.EqualFold(strings.TrimSpace(answer), opt) {
			return opt, true
		}
	}
	return "", false
}

func filterByValue(candidates []catalog.MedicineRecord, attribute, value string) []catalog.MedicineRecord {
	kept := candidates[:0:0]
	for _, rec := range candidates {
		v, ok := rec.Value(attribute)
		if ok && v == value {
			kept = append(kept, rec)
		}
	}
	return kept
}
