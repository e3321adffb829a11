package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/DOUGSKEEZ/monty-sub006/internal/catalog"
)

// maxQueryParamLen limits query parameter length to prevent oversized URL params.
const maxQueryParamLen = 100

// shadeCommandRequest is the body of POST /shades/{id}/command.
type shadeCommandRequest struct {
	Action string `json:"action"`
}

// taskResponse is returned for accepted fire-and-forget submissions.
type taskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// shadeIDFromURL parses the {id} route parameter.
func shadeIDFromURL(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, errors.New("shade ID must be a positive integer")
	}
	return id, nil
}

// handleListShades returns all shades, optionally filtered by room.
//
// Query parameters:
//   - room: filter by room name
func (s *Server) handleListShades(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if room := r.URL.Query().Get("room"); room != "" {
		if len(room) > maxQueryParamLen {
			writeBadRequest(w, "room exceeds maximum length")
			return
		}
		shades, err := s.catalog.ListShadesByRoom(ctx, room)
		if err != nil {
			writeInternalError(w, "failed to list shades")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"shades": shades, "count": len(shades)})
		return
	}

	shades, err := s.catalog.ListShades(ctx)
	if err != nil {
		writeInternalError(w, "failed to list shades")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shades": shades, "count": len(shades)})
}

// handleGetShade returns a single shade by ID.
func (s *Server) handleGetShade(w http.ResponseWriter, r *http.Request) {
	id, err := shadeIDFromURL(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	shade, err := s.catalog.GetShade(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrShadeNotFound) {
			writeNotFound(w, "shade not found")
			return
		}
		writeInternalError(w, "failed to get shade")
		return
	}

	writeJSON(w, http.StatusOK, shade)
}

// handleCreateShade creates a new shade.
func (s *Server) handleCreateShade(w http.ResponseWriter, r *http.Request) {
	var shade catalog.Shade
	if err := json.NewDecoder(r.Body).Decode(&shade); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.catalog.CreateShade(r.Context(), &shade); err != nil {
		switch {
		case errors.Is(err, catalog.ErrInvalidShade):
			writeBadRequest(w, err.Error())
		case errors.Is(err, catalog.ErrShadeExists):
			writeError(w, http.StatusConflict, ErrCodeConflict, "shade already exists")
		default:
			writeInternalError(w, "failed to create shade")
		}
		return
	}

	writeJSON(w, http.StatusCreated, shade)
}

// handleUpdateShade updates an existing shade.
func (s *Server) handleUpdateShade(w http.ResponseWriter, r *http.Request) {
	id, err := shadeIDFromURL(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var shade catalog.Shade
	if err := json.NewDecoder(r.Body).Decode(&shade); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	shade.ID = id

	if err := s.catalog.UpdateShade(r.Context(), &shade); err != nil {
		switch {
		case errors.Is(err, catalog.ErrShadeNotFound):
			writeNotFound(w, "shade not found")
		case errors.Is(err, catalog.ErrInvalidShade):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "failed to update shade")
		}
		return
	}

	writeJSON(w, http.StatusOK, shade)
}

// handleDeleteShade removes a shade from the catalog.
func (s *Server) handleDeleteShade(w http.ResponseWriter, r *http.Request) {
	id, err := shadeIDFromURL(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.catalog.DeleteShade(r.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrShadeNotFound) {
			writeNotFound(w, "shade not found")
			return
		}
		writeInternalError(w, "failed to delete shade")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleShadeCommand submits a fire-and-forget command for a shade.
//
// The response is returned as soon as the command is registered; the
// transmission sequence runs in the background. Progress is observable via
// the WebSocket event stream and GET /tasks.
func (s *Server) handleShadeCommand(w http.ResponseWriter, r *http.Request) {
	id, err := shadeIDFromURL(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var req shadeCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	action, err := catalog.ParseAction(req.Action)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	taskID, err := s.dispatcher.Submit(r.Context(), id, action)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrShadeNotFound):
			writeNotFound(w, "shade not found")
		case errors.Is(err, catalog.ErrCodeUnmapped):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "failed to submit command")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, taskResponse{TaskID: taskID, Status: "accepted"})
}
