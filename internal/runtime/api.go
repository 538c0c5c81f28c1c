package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/karshdev/lift-core/internal/devices"
	"github.com/karshdev/lift-core/internal/session"
)

// api exposes session control and device inventory over HTTP.
type api struct {
	manager  *session.Manager
	registry *devices.Registry
	log      *slog.Logger
}

func newAPI(manager *session.Manager, registry *devices.Registry, log *slog.Logger) *api {
	return &api{
		manager:  manager,
		registry: registry,
		log:      log.With(slog.String("component", "http-api")),
	}
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions", a.handleCreate)
	mux.HandleFunc("GET /v1/sessions", a.handleList)
	mux.HandleFunc("GET /v1/sessions/{id}", a.handleGet)
	mux.HandleFunc("GET /v1/sessions/{id}/events", a.handleEvents)
	mux.HandleFunc("POST /v1/sessions/{id}/start", a.sessionAction((*session.Session).Start))
	mux.HandleFunc("POST /v1/sessions/{id}/stop", a.sessionAction((*session.Session).Stop))
	mux.HandleFunc("POST /v1/sessions/{id}/process", a.sessionAction((*session.Session).Process))
	mux.HandleFunc("POST /v1/sessions/{id}/restart", a.sessionAction((*session.Session).Restart))
	mux.HandleFunc("POST /v1/sessions/{id}/cancel", a.sessionAction((*session.Session).Cancel))
	mux.HandleFunc("GET /v1/devices", a.handleDevices)
}

type createSessionRequest struct {
	Question session.Question `json:"question"`
	Profile  string           `json:"profile,omitempty"`
}

func (a *api) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeErrorStatus(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question.Text) == "" {
		a.writeErrorStatus(w, http.StatusBadRequest, "question.text is required")
		return
	}

	s, err := a.manager.Create(r.Context(), req.Question, req.Profile)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, s.Snapshot())
}

func (a *api) handleList(w http.ResponseWriter, _ *http.Request) {
	snapshots := a.manager.List()
	if snapshots == nil {
		snapshots = []session.Snapshot{}
	}
	a.writeJSON(w, http.StatusOK, snapshots)
}

func (a *api) handleGet(w http.ResponseWriter, r *http.Request) {
	s, err := a.manager.Get(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, s.Snapshot())
}

func (a *api) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			a.writeErrorStatus(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	events, err := a.manager.Events(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	type eventView struct {
		Type      string `json:"type"`
		Payload   string `json:"payload"`
		CreatedAt string `json:"created_at"`
	}
	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, eventView{
			Type:      e.Type,
			Payload:   string(e.Payload),
			CreatedAt: e.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	a.writeJSON(w, http.StatusOK, views)
}

func (a *api) handleDevices(w http.ResponseWriter, r *http.Request) {
	if a.registry == nil {
		a.writeJSON(w, http.StatusOK, []devices.DeviceInfo{})
		return
	}
	var filter func(devices.DeviceInfo) bool
	if r.URL.Query().Get("healthy") == "true" {
		filter = devices.HealthyOnly()
	}
	found := a.registry.Query(filter)
	if found == nil {
		found = []devices.DeviceInfo{}
	}
	a.writeJSON(w, http.StatusOK, found)
}

func (a *api) sessionAction(action func(*session.Session, context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := a.manager.Get(r.PathValue("id"))
		if err != nil {
			a.writeError(w, err)
			return
		}
		if err := action(s, r.Context()); err != nil {
			a.writeError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, s.Snapshot())
	}
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		a.writeErrorStatus(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrInvalidPhase):
		a.writeErrorStatus(w, http.StatusConflict, err.Error())
	default:
		a.log.Error("request failed", slog.String("error", err.Error()))
		a.writeErrorStatus(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *api) writeErrorStatus(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, map[string]string{"error": message})
}

func (a *api) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.log.Warn("encode response failed", slog.String("error", err.Error()))
	}
}
