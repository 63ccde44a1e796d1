package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"outbound-call-scheduler/internal/models"
	"outbound-call-scheduler/internal/recordstore"
	"outbound-call-scheduler/internal/tasks"
	"outbound-call-scheduler/internal/telemetry"
)

// Server wires HTTP handlers for task creation and the completion webhook.
type Server struct {
	tasks  *tasks.Repository
	relay  *Relay
	logger *slog.Logger
}

func NewServer(taskRepo *tasks.Repository, relay *Relay, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{tasks: taskRepo, relay: relay, logger: logger}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/tasks", s.handleCreateTask)
	r.Get("/tasks/{id}", s.handleGetTask)
	r.Post("/webhooks/call-completed", s.handleCompletionWebhook)
	return r
}

type createTaskRequest struct {
	PhoneNumber   string     `json:"phone_number"`
	Message       string     `json:"message"`
	ScheduledTime *time.Time `json:"scheduled_time"`
	OwnerAgentID  string     `json:"owner_agent_id"`
	CallerName    string     `json:"caller_name"`
	PhoneNumberID string     `json:"phone_number_id"`
	RecipientName string     `json:"recipient_name"`
	RecordID      string     `json:"record_id"`
	ThreadID      string     `json:"thread_id"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if !validPhoneNumber(req.PhoneNumber) {
		http.Error(w, "phone_number must be E.164-like", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	if req.OwnerAgentID == "" {
		http.Error(w, "owner_agent_id is required", http.StatusBadRequest)
		return
	}
	scheduledTime := time.Now().UTC()
	if req.ScheduledTime != nil {
		scheduledTime = req.ScheduledTime.UTC()
	}

	task, err := s.tasks.Create(r.Context(), models.ScheduledCallTask{
		PhoneNumber:           req.PhoneNumber,
		Message:               req.Message,
		ScheduledTime:         scheduledTime,
		OwnerAgentID:          req.OwnerAgentID,
		CallerName:            req.CallerName,
		PhoneNumberIDOverride: req.PhoneNumberID,
		RecipientName:         req.RecipientName,
		RecordID:              req.RecordID,
		ThreadID:              req.ThreadID,
	})
	if err != nil {
		s.logger.Error("create task failed", "error", err)
		http.Error(w, "create task failed", http.StatusInternalServerError)
		return
	}
	telemetry.TasksScheduled.Inc()
	writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			http.Error(w, "task not found", http.StatusNotFound)
			return
		}
		s.logger.Error("get task failed", "task_id", id, "error", err)
		http.Error(w, "get task failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCompletionWebhook(w http.ResponseWriter, r *http.Request) {
	var event CompletionEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	err := s.relay.Process(r.Context(), event)
	if errors.Is(err, ErrInvalidEvent) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.logger.Error("webhook processing failed", "call_id", event.CallID, "error", err)
		http.Error(w, "webhook processing failed", http.StatusInternalServerError)
		return
	}
	// Unknown call ids also get a 200: redelivery would not help and the
	// platform should not keep retrying.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// validPhoneNumber accepts E.164-ish numbers: optional +, then digits.
func validPhoneNumber(s string) bool {
	s = strings.TrimPrefix(s, "+")
	if len(s) < 7 || len(s) > 15 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
