package api

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/LeventeLantos/future-messaging/internal/model"
	"github.com/LeventeLantos/future-messaging/internal/repo"
	"github.com/LeventeLantos/future-messaging/internal/scheduler"
)

type Handler struct {
	sched *scheduler.Scheduler
	repo  repo.MessageRepository
}

func NewHandler(s *scheduler.Scheduler, r repo.MessageRepository) *Handler {
	return &Handler{sched: s, repo: r}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SweeperStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SweeperStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SweeperStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

// SweeperRun is the administrative trigger: one ad hoc sweep outside the
// regular interval, same contract as a scheduled tick.
func (h *Handler) SweeperRun(w http.ResponseWriter, r *http.Request) {
	if !h.sched.Kick() {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "sweeper is not running"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"triggered": true})
}

type createAttachment struct {
	StoragePath string `json:"storagePath"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

type createMessageRequest struct {
	OwnerID        string             `json:"ownerId"`
	RecipientName  string             `json:"recipientName"`
	RecipientEmail string             `json:"recipientEmail"`
	Body           string             `json:"body"`
	ScheduledAt    time.Time          `json:"scheduledAt"`
	Attachments    []createAttachment `json:"attachments"`
}

func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json: " + err.Error()})
		return
	}

	if reason := validateCreate(req, time.Now().UTC()); reason != "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": reason})
		return
	}

	msg := model.Message{
		OwnerID:       req.OwnerID,
		RecipientName: strings.TrimSpace(req.RecipientName),
		ScheduledAt:   req.ScheduledAt.UTC(),
	}
	if e := strings.TrimSpace(req.RecipientEmail); e != "" {
		msg.RecipientEmail = &e
	}
	if req.Body != "" {
		b := req.Body
		msg.Body = &b
	}
	for _, a := range req.Attachments {
		name := a.Filename
		if name == "" {
			name = path.Base(a.StoragePath)
		}
		msg.Attachments = append(msg.Attachments, model.Attachment{
			StoragePath: a.StoragePath,
			Filename:    name,
			ContentType: a.ContentType,
		})
	}

	if err := h.repo.Insert(r.Context(), &msg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          msg.ID,
		"status":      msg.Status,
		"scheduledAt": msg.ScheduledAt,
	})
}

func validateCreate(req createMessageRequest, now time.Time) string {
	if strings.TrimSpace(req.OwnerID) == "" {
		return "ownerId is required"
	}
	if req.ScheduledAt.IsZero() {
		return "scheduledAt is required"
	}
	if !req.ScheduledAt.After(now) {
		return "scheduledAt must be in the future"
	}
	if e := strings.TrimSpace(req.RecipientEmail); e != "" {
		if _, err := mail.ParseAddress(e); err != nil {
			return "recipientEmail is not a valid address"
		}
	}
	if req.Body == "" && len(req.Attachments) == 0 {
		return "message needs a body or at least one attachment"
	}
	for _, a := range req.Attachments {
		if strings.TrimSpace(a.StoragePath) == "" {
			return "attachment storagePath is required"
		}
	}
	return ""
}

func (h *Handler) ListSentMessages(w http.ResponseWriter, r *http.Request) {
	h.listByStatus(w, r, model.Sent)
}

func (h *Handler) ListFailedMessages(w http.ResponseWriter, r *http.Request) {
	h.listByStatus(w, r, model.Failed)
}

func (h *Handler) listByStatus(w http.ResponseWriter, r *http.Request, status model.Status) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.repo.ListByStatus(r.Context(), status, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
