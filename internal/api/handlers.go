package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hookrelay/internal/model"
	"hookrelay/internal/registry"
	"hookrelay/internal/store"
	"hookrelay/internal/webhooks"
)

// EndpointsHandler handles POST (register) and GET (list) on /v1/endpoints.
func (s *Server) EndpointsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.EndpointRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		ep, err := s.Registry.Register(r.Context(), req)
		if err != nil {
			s.writeError(w, r, "Register endpoint failed", err)
			return
		}
		writeJSON(w, http.StatusCreated, ep)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"items": s.Registry.List()})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// EndpointByIDHandler handles /v1/endpoints/{id}, /v1/endpoints/{id}/deactivate
// and /v1/endpoints/{id}/stats.
func (s *Server) EndpointByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/endpoints/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			ep, err := s.Registry.Get(id)
			if err != nil {
				s.writeError(w, r, "Get endpoint failed", err)
				return
			}
			writeJSON(w, http.StatusOK, ep)
		case http.MethodPatch:
			var patch model.EndpointPatch
			if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
				return
			}
			ep, err := s.Registry.Update(r.Context(), id, patch)
			if err != nil {
				s.writeError(w, r, "Update endpoint failed", err)
				return
			}
			writeJSON(w, http.StatusOK, ep)
		case http.MethodDelete:
			if err := s.Registry.Delete(r.Context(), id); err != nil {
				s.writeError(w, r, "Delete endpoint failed", err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "deactivate":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := s.Registry.Deactivate(r.Context(), id); err != nil {
			s.writeError(w, r, "Deactivate endpoint failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "stats":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if _, err := s.Registry.Get(id); err != nil {
			s.writeError(w, r, "Get endpoint failed", err)
			return
		}
		since, err := sinceFromWindow(r.URL.Query().Get("window"))
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid window", err.Error(), r.URL.Path)
			return
		}
		stats, err := s.Store.EndpointStats(r.Context(), id, since)
		if err != nil {
			s.writeError(w, r, "Endpoint stats failed", err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

type emitRequest struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// EventsHandler handles POST /v1/events (emit) and GET /v1/events (list).
func (s *Server) EventsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req emitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.Type == "" {
			writeProblem(w, http.StatusBadRequest, "Invalid event", "type is required", r.URL.Path)
			return
		}
		ids, err := s.Dispatcher.Emit(r.Context(), req.Type, req.Payload)
		if err != nil {
			s.writeError(w, r, "Emit failed", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"eventIds": ids})
	case http.MethodGet:
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, err := s.Store.ListEvents(r.Context(),
			r.URL.Query().Get("endpointId"),
			model.EventStatus(r.URL.Query().Get("status")), limit)
		if err != nil {
			s.writeError(w, r, "List events failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// EventByIDHandler handles GET /v1/events/{id}.
func (s *Server) EventByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/events/")
	evt, err := s.Store.GetEvent(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "Get event failed", err)
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

// FailedHandler handles GET /v1/admin/failed?endpointId=&since=.
func (s *Server) FailedHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid since", err.Error(), r.URL.Path)
		return
	}
	items, err := s.Store.ListFailed(r.Context(), r.URL.Query().Get("endpointId"), since)
	if err != nil {
		s.writeError(w, r, "List failed events failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// RequeueHandler handles POST /v1/admin/requeue/{eventId}.
func (s *Server) RequeueHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/admin/requeue/")
	if err := s.Dispatcher.Requeue(r.Context(), id); err != nil {
		s.writeError(w, r, "Requeue failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequeueAllFailedHandler handles POST /v1/admin/requeue-failed?endpointId=&since=.
func (s *Server) RequeueAllFailedHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid since", err.Error(), r.URL.Path)
		return
	}
	n, err := s.Dispatcher.RequeueAllFailed(r.Context(), r.URL.Query().Get("endpointId"), since)
	if err != nil {
		s.writeError(w, r, "Requeue all failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requeued": n})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Ready once endpoints are loadable from the store.
	if _, err := s.Store.ListEndpoints(r.Context()); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Store unavailable", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeError maps pipeline errors to problem responses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, title string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
	case errors.Is(err, store.ErrNotRequeueable):
		writeProblem(w, http.StatusConflict, title, err.Error(), r.URL.Path)
	case errors.Is(err, registry.ErrInvalid):
		writeProblem(w, http.StatusBadRequest, title, err.Error(), r.URL.Path)
	case errors.Is(err, webhooks.ErrStopped):
		writeProblem(w, http.StatusServiceUnavailable, title, err.Error(), r.URL.Path)
	default:
		s.log.Error("request failed", "path", r.URL.Path, "error", err)
		writeProblem(w, http.StatusInternalServerError, title, err.Error(), r.URL.Path)
	}
}

func parseSince(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

func sinceFromWindow(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return time.Time{}, err
	}
	return time.Now().Add(-d), nil
}
