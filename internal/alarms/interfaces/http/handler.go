package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	alarmapp "vesselwatch/internal/alarms/application"
	alarms "vesselwatch/internal/alarms/domain"
	"vesselwatch/internal/alarms/interfaces"
)

const timeLayout = time.RFC3339

// Handler provides alarm HTTP endpoints over the application facade.
type Handler struct {
	service *alarmapp.Service
}

// NewHandler constructs a handler.
func NewHandler(service *alarmapp.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("alarms handler: nil service")
	}
	return &Handler{service: service}, nil
}

type actionRequest struct {
	UserID string `json:"user_id"`
}

// ServeHTTP handles /api/v1/alarms, /api/v1/groups, /api/v1/rules and
// /api/v1/trends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/alarms":
		h.handleListAlarms(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/alarms/"):
		h.handleAlarm(w, r, strings.TrimPrefix(r.URL.Path, "/api/v1/alarms/"))
	case r.URL.Path == "/api/v1/groups":
		h.handleListGroups(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/groups/"):
		h.handleGroup(w, r, strings.TrimPrefix(r.URL.Path, "/api/v1/groups/"))
	case r.URL.Path == "/api/v1/rules":
		h.handleRules(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/rules/"):
		h.handleRule(w, r, strings.TrimPrefix(r.URL.Path, "/api/v1/rules/"))
	case r.URL.Path == "/api/v1/trends":
		h.handleTrends(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleListAlarms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var list []alarms.Alarm
	switch r.URL.Query().Get("status") {
	case "", "active":
		list = h.service.GetActiveAlarms()
	case "all":
		list = h.service.GetAllAlarms()
	default:
		http.Error(w, "status must be active or all", http.StatusBadRequest)
		return
	}
	respondJSON(w, list)
}

func (h *Handler) handleAlarm(w http.ResponseWriter, r *http.Request, path string) {
	parts := strings.Split(path, "/")
	id := parts[0]
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		alarm, ok := h.service.GetAlarmByID(id)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		respondJSON(w, alarm)
		return
	}
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch parts[1] {
	case "history":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if _, ok := h.service.GetAlarmByID(id); !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		respondJSON(w, h.service.GetAlarmHistory(id))
	case "ack":
		h.handleAlarmAction(w, r, id, h.service.AcknowledgeAlarm)
	case "clear":
		h.handleAlarmAction(w, r, id, h.service.ClearAlarm)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleAlarmAction(w http.ResponseWriter, r *http.Request, id string, action func(ctx context.Context, id, by string) bool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.service.GetAlarmByID(id); !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !action(r.Context(), id, decodeUserID(r)) {
		http.Error(w, "alarm state does not allow this action", http.StatusConflict)
		return
	}
	alarm, _ := h.service.GetAlarmByID(id)
	respondJSON(w, alarm)
}

func (h *Handler) handleListGroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, h.service.GetGroups())
}

func (h *Handler) handleGroup(w http.ResponseWriter, r *http.Request, path string) {
	parts := strings.Split(path, "/")
	id := parts[0]
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		group, ok := h.service.GetGroup(id)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		respondJSON(w, group)
		return
	}
	if len(parts) != 2 || parts[1] != "ack" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.service.GetGroup(id); !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !h.service.AcknowledgeGroup(r.Context(), id, decodeUserID(r)) {
		http.Error(w, "group could not be fully acknowledged", http.StatusConflict)
		return
	}
	group, _ := h.service.GetGroup(id)
	respondJSON(w, group)
}

func (h *Handler) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		respondJSON(w, h.service.GetRules())
	case http.MethodPost:
		var rule alarms.AlarmRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			http.Error(w, "invalid rule payload", http.StatusBadRequest)
			return
		}
		if err := h.service.RegisterRule(rule); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(rule)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleRule(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.service.UnregisterRule(id) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTrends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	trend := h.service.GetTrends(from, to)
	switch r.URL.Query().Get("format") {
	case "", "json":
		respondJSON(w, trend)
	case "xlsx":
		data, err := interfaces.BuildTrendXLSX(trend)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="alarm-trends.xlsx"`)
		_, _ = w.Write(data)
	case "pdf":
		data, err := interfaces.BuildTrendPDF(trend)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="alarm-trends.pdf"`)
		_, _ = w.Write(data)
	default:
		http.Error(w, "format must be json, xlsx or pdf", http.StatusBadRequest)
	}
}

func decodeUserID(r *http.Request) string {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ""
	}
	return req.UserID
}

func respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}
