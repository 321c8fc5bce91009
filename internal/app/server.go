package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/oratio/internal/analysis"
	"github.com/MrWong99/oratio/internal/detect"
	"github.com/MrWong99/oratio/internal/health"
	"github.com/MrWong99/oratio/internal/metrics"
	"github.com/MrWong99/oratio/internal/observe"
	"github.com/MrWong99/oratio/pkg/speech"
)

// maxRequestBytes caps the size of an analysis request body.
const maxRequestBytes = 8 << 20

// AnalyzeRequest is the JSON body of POST /v1/analyses.
type AnalyzeRequest struct {
	UserID        string            `json:"user_id"`
	Language      string            `json:"language"`
	SpeechContext string            `json:"speech_context"`
	UserLevel     string            `json:"user_level"`
	Goals         []string          `json:"goals"`
	Transcript    speech.Transcript `json:"transcript"`

	// Save records the session in the user's history. Defaults to true.
	Save *bool `json:"save"`
}

func (r AnalyzeRequest) request() analysis.Request {
	return analysis.Request{
		UserID:        r.UserID,
		Language:      r.Language,
		SpeechContext: r.SpeechContext,
		UserLevel:     r.UserLevel,
		Goals:         r.Goals,
		Transcript:    r.Transcript,
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// Handler returns the HTTP API: analysis, session history, rule languages,
// health probes and Prometheus metrics.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/analyses", a.handleAnalyze)
	mux.HandleFunc("GET /v1/users/{userID}/sessions", a.handleSessions)
	mux.HandleFunc("GET /v1/languages", a.handleLanguages)
	health.New(a.Checkers()...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(a.metrics)(mux)
}

func (a *App) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body AnalyzeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(body.Transcript.Text) == "" && len(body.Transcript.Words) > 0 {
		body.Transcript.Text = speech.JoinWords(body.Transcript.Words)
	}

	save := body.Save == nil || *body.Save
	rep, err := a.Analyze(r.Context(), body.request(), save)
	if err != nil {
		writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// statusFor maps pipeline errors to HTTP status codes. Input problems are
// the caller's fault; anything else is ours.
func statusFor(err error) int {
	var de *detect.Error
	var me *metrics.Error
	switch {
	case errors.Is(err, analysis.ErrNoTranscript), errors.As(err, &de), errors.As(err, &me):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (a *App) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.history.CompletedSessions(r.Context(), r.PathValue("userID"))
	if err != nil {
		observe.Logger(r.Context()).Error("app: list sessions", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "history unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (a *App) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"languages": a.Rules().Languages(),
		"default":   a.Config().Rules.DefaultLanguage,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("app: write response", "status", status, "err", err)
	}
}
