package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/foxseedlab/coachcall/internal/config"
	"github.com/foxseedlab/coachcall/internal/repository"
	"github.com/foxseedlab/coachcall/internal/session"
	"github.com/foxseedlab/coachcall/internal/transcript"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	maxWebhookBodyBytes = 1 << 20
	ssePingInterval     = 15 * time.Second

	headerSignature = "X-Signature"
	headerAPIKey    = "X-Api-Key"
)

type Server struct {
	cfg       *config.Config
	repo      repository.Repository
	router    *session.Router
	registry  *session.Registry
	collector *transcript.Collector

	httpServer *http.Server
}

func NewServer(cfg *config.Config, repo repository.Repository, router *session.Router, registry *session.Registry, collector *transcript.Collector) *Server {
	s := &Server{
		cfg:       cfg,
		repo:      repo,
		router:    router,
		registry:  registry,
		collector: collector,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /meetings/{id}/status", s.handleMeetingStatus)
	mux.HandleFunc("GET /meetings/{id}/state", s.handleConversationState)
	mux.HandleFunc("GET /meetings/{id}/transcript", s.handleTranscript)
	mux.HandleFunc("GET /meetings/{id}/transcript/stream", s.handleTranscriptStream)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe() error {
	slog.Info("http server listening", "addr", s.cfg.HTTPAddr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}

// handleWebhook authenticates, parses and dispatches one provider
// telemetry delivery. Authentication happens before any parsing; a bad
// signature is a permanent rejection.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if !verifyAPIKey(r.Header.Get(headerAPIKey), s.cfg.WebhookAPIKey) ||
		!verifySignature(body, r.Header.Get(headerSignature), s.cfg.WebhookSecret) {
		slog.Warn("webhook authentication failed", "remote_addr", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	evt, err := session.ParseEvent(body)
	if err != nil {
		slog.Warn("malformed webhook payload", "error", err)
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	if evt == nil {
		// Unknown event kind: acknowledged so the provider stops retrying.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if err := s.router.HandleEvent(r.Context(), evt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "meeting not found")
			return
		}
		slog.Error("webhook handler failed", "error", err, "event_type", evt.Type())
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMeetingStatus(w http.ResponseWriter, r *http.Request) {
	meeting, err := s.repo.GetMeeting(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "meeting not found")
			return
		}
		slog.Error("failed to load meeting status", "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                  meeting.ID,
		"status":              meeting.Status,
		"error":               meeting.ErrorMessage,
		"processingStartedAt": meeting.ProcessingStartedAt,
		"startedAt":           meeting.StartedAt,
		"endedAt":             meeting.EndedAt,
	})
}

// handleConversationState serves the in-memory speaking state of an
// active call. Untracked meetings 404 by design: this state does not
// survive the call or a process restart.
func (s *Server) handleConversationState(w http.ResponseWriter, r *http.Request) {
	call, ok := s.registry.Lookup(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no active call for meeting")
		return
	}
	writeJSON(w, http.StatusOK, call.Tracker.Snapshot())
}

type transcriptChunkResponse struct {
	ID        string    `json:"id"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func toChunkResponse(c repository.TranscriptChunk) transcriptChunkResponse {
	speaker := "user"
	if c.Speaker == repository.SpeakerTypeAgent {
		speaker = "assistant"
	}
	return transcriptChunkResponse{ID: c.ID, Speaker: speaker, Text: c.Text, Timestamp: c.SpokenAt}
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	chunks := s.collector.GetTranscript(r.Context(), r.PathValue("id"))
	out := make([]transcriptChunkResponse, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, toChunkResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleTranscriptStream pushes the stored transcript as one batch event,
// then live chunks as they arrive, with keep-alive pings. The stream ends
// when the client disconnects or the call is cleaned up.
func (s *Server) handleTranscriptStream(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("id")

	sw, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	token, events := s.collector.Subscribe(meetingID)
	defer s.collector.Unsubscribe(meetingID, token)

	// A chunk stored between Subscribe and this read shows up in both the
	// batch and the live channel; batchHighWater filters the duplicate.
	chunks := s.collector.GetTranscript(r.Context(), meetingID)
	batch := make([]transcriptChunkResponse, 0, len(chunks))
	batchHighWater := 0
	for _, c := range chunks {
		batch = append(batch, toChunkResponse(c))
		if c.Sequence > batchHighWater {
			batchHighWater = c.Sequence
		}
	}
	if err := sw.Send("batch", batch); err != nil {
		return
	}

	ticker := time.NewTicker(ssePingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := sw.Ping(); err != nil {
				return
			}
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Sequence <= batchHighWater {
				continue
			}
			if err := sw.Send("chunk", map[string]any{
				"id":        evt.ID,
				"speaker":   chunkSpeakerLabel(evt.Speaker),
				"text":      evt.Text,
				"timestamp": evt.Timestamp,
			}); err != nil {
				return
			}
		}
	}
}

func chunkSpeakerLabel(speaker repository.SpeakerType) string {
	if speaker == repository.SpeakerTypeAgent {
		return "assistant"
	}
	return "user"
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
