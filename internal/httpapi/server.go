package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/clintwin/pillfinder/internal/config"
	"github.com/clintwin/pillfinder/internal/identify"
	"github.com/clintwin/pillfinder/internal/observability"
	"github.com/clintwin/pillfinder/internal/protocol"
)

type Server struct {
	cfg         config.Config
	engine      *identify.Engine
	metrics     *observability.Metrics
	upgrader    websocket.Upgrader
	catalogSize int
	storeMode   string
}

func New(cfg config.Config, engine *identify.Engine, metrics *observability.Metrics, catalogSize int, storeMode string) *Server {
	return &Server{
		cfg:         cfg,
		engine:      engine,
		metrics:     metrics,
		catalogSize: catalogSize,
		storeMode:   storeMode,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up; other sites must not
				// be able to drive a user's identification session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/identify/start", s.handleStart)
	r.Post("/v1/identify/answer", s.handleAnswer)
	r.Get("/v1/identify/session/{id}", s.handleGetSession)
	r.Delete("/v1/identify/session/{id}", s.handleEndSession)
	r.Get("/v1/identify/stats", s.handleStats)
	r.Get("/v1/identify/ws", s.handleIdentifyWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"catalog_size": s.catalogSize,
		"catalog_mode": s.storeMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.engine == nil || s.catalogSize == 0 {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "catalog is not loaded")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ready",
		"catalog_size": s.catalogSize,
		"catalog_mode": s.storeMode,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondError(w, http.StatusServiceUnavailable, "stats_unavailable", "metrics are not configured")
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.Stats())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	start, err := s.engine.Start(r.Context())
	if err != nil {
		status, code := statusForError(err)
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, startResponseBody(start))
}

type answerRequest struct {
	SessionID  string `json:"session_id"`
	QuestionID string `json:"question_id,omitempty"`
	Answer     string `json:"answer"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}
	if strings.TrimSpace(req.Answer) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "answer is required")
		return
	}

	outcome, err := s.engine.SubmitAnswer(r.Context(), req.SessionID, req.QuestionID, req.Answer)
	if err != nil {
		status, code := statusForError(err)
		respondError(w, status, code, err.Error())
		return
	}
	if outcome.Result != nil {
		respondJSON(w, http.StatusOK, outcome.Result)
		return
	}
	respondJSON(w, http.StatusOK, outcome.Question)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.engine.Get(id)
	if err != nil {
		status, code := statusForError(err)
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sessionView(sess))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	if err := s.engine.End(id); err != nil {
		status, code := statusForError(err)
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "session ended"})
}

func (s *Server) handleIdentifyWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	}

	ctx := r.Context()
	outbound := make(chan any, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range outbound {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}()

	send := func(msg any) {
		select {
		case outbound <- msg:
		default:
			// Writes stay single-threaded; drop if the queue is saturated.
		}
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	var started string
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "invalid_client_message",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}

		switch msg := parsed.(type) {
		case protocol.ClientStart:
			if started != "" {
				send(protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					SessionID: started,
					Code:      "session_already_started",
					Retryable: false,
					Detail:    "this connection already runs a session",
				})
				continue
			}
			start, err := s.engine.Start(ctx)
			if err != nil {
				send(wsError("", err))
				continue
			}
			started = start.SessionID
			if start.Result != nil {
				send(protocol.ResultEvent{Type: protocol.TypeResult, Result: start.Result})
				continue
			}
			send(protocol.QuestionEvent{
				Type:                protocol.TypeQuestion,
				SessionID:           start.SessionID,
				Question:            *start.Question,
				RemainingCandidates: start.RemainingCandidates,
				Confidence:          start.Confidence,
				QuestionsAsked:      start.QuestionsAsked,
			})
		case protocol.ClientAnswer:
			outcome, err := s.engine.SubmitAnswer(ctx, msg.SessionID, msg.QuestionID, msg.Answer)
			if err != nil {
				send(wsError(msg.SessionID, err))
				continue
			}
			if outcome.Result != nil {
				send(protocol.ResultEvent{Type: protocol.TypeResult, Result: outcome.Result})
				continue
			}
			q := outcome.Question
			send(protocol.QuestionEvent{
				Type:                protocol.TypeQuestion,
				SessionID:           q.SessionID,
				Question:            q.Question,
				RemainingCandidates: q.RemainingCandidates,
				Confidence:          q.Confidence,
				QuestionsAsked:      q.QuestionsAsked,
			})
		case protocol.ClientEnd:
			if err := s.engine.End(msg.SessionID); err != nil {
				send(wsError(msg.SessionID, err))
				continue
			}
			send(protocol.SessionEnded{Type: protocol.TypeSessionEnded, SessionID: msg.SessionID})
		}
	}

	close(outbound)
	<-writerDone
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
	}
}

func wsError(sessionID string, err error) protocol.ErrorEvent {
	_, code := statusForError(err)
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Retryable: errors.Is(err, identify.ErrSessionBusy),
		Detail:    err.Error(),
	}
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, identify.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, identify.ErrInvalidAnswer):
		return http.StatusBadRequest, "invalid_answer"
	case errors.Is(err, identify.ErrStaleQuestion):
		return http.StatusBadRequest, "stale_question"
	case errors.Is(err, identify.ErrSessionBusy):
		return http.StatusConflict, "session_conflict"
	case errors.Is(err, identify.ErrSessionNotActive):
		return http.StatusConflict, "session_not_active"
	case errors.Is(err, identify.ErrNoQuestion):
		return http.StatusConflict, "no_pending_question"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func startResponseBody(start *identify.StartResponse) any {
	if start.Result != nil {
		return map[string]any{
			"session_id": start.SessionID,
			"result":     start.Result,
		}
	}
	return map[string]any{
		"type":                 "question",
		"session_id":           start.SessionID,
		"question":             start.Question,
		"remaining_candidates": start.RemainingCandidates,
		"confidence":           start.Confidence,
		"questions_asked":      start.QuestionsAsked,
	}
}

func sessionView(sess *identify.Session) map[string]any {
	view := map[string]any{
		"session_id":           sess.ID,
		"status":               string(sess.Status),
		"remaining_candidates": len(sess.Candidates),
		"confidence":           sess.Confidence,
		"questions_asked":      len(sess.Answers),
		"asked_attributes":     sess.AskedAttributes,
		"answers_given":        sess.Answers,
		"created_at":           sess.CreatedAt,
		"last_activity_at":     sess.LastActivityAt,
	}
	if sess.Current != nil {
		view["question"] = sess.Current
	}
	if sess.Result != nil {
		view["result"] = sess.Result
	}
	return view
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
