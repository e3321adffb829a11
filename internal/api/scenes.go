package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DOUGSKEEZ/monty-sub006/internal/catalog"
	"github.com/DOUGSKEEZ/monty-sub006/internal/dispatch"
)

// sceneNameFromURL extracts and validates the {name} route parameter.
func sceneNameFromURL(r *http.Request) (string, error) {
	name := chi.URLParam(r, "name")
	if name == "" || len(name) > maxQueryParamLen {
		return "", errors.New("invalid scene name")
	}
	return name, nil
}

// handleListScenes returns all scenes.
func (s *Server) handleListScenes(w http.ResponseWriter, r *http.Request) {
	scenes, err := s.catalog.ListScenes(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list scenes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenes": scenes, "count": len(scenes)})
}

// handleGetScene returns a single scene by name.
func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	name, err := sceneNameFromURL(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	scene, err := s.catalog.GetScene(r.Context(), name)
	if err != nil {
		if errors.Is(err, catalog.ErrSceneNotFound) {
			writeNotFound(w, "scene not found")
			return
		}
		writeInternalError(w, "failed to get scene")
		return
	}

	writeJSON(w, http.StatusOK, scene)
}

// handleSaveScene creates or replaces a scene.
func (s *Server) handleSaveScene(w http.ResponseWriter, r *http.Request) {
	name, err := sceneNameFromURL(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var scene catalog.Scene
	if err := json.NewDecoder(r.Body).Decode(&scene); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	scene.Name = name

	if err := s.catalog.SaveScene(r.Context(), &scene); err != nil {
		switch {
		case errors.Is(err, catalog.ErrInvalidScene), errors.Is(err, catalog.ErrInvalidAction):
			writeBadRequest(w, err.Error())
		case errors.Is(err, catalog.ErrShadeNotFound):
			writeBadRequest(w, "scene references an unknown shade")
		default:
			writeInternalError(w, "failed to save scene")
		}
		return
	}

	writeJSON(w, http.StatusOK, scene)
}

// handleDeleteScene removes a scene from the catalog.
func (s *Server) handleDeleteScene(w http.ResponseWriter, r *http.Request) {
	name, err := sceneNameFromURL(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.catalog.DeleteScene(r.Context(), name); err != nil {
		if errors.Is(err, catalog.ErrSceneNotFound) {
			writeNotFound(w, "scene not found")
			return
		}
		writeInternalError(w, "failed to delete scene")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleActivateScene submits a scene for fire-and-forget execution.
func (s *Server) handleActivateScene(w http.ResponseWriter, r *http.Request) {
	name, err := sceneNameFromURL(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	taskID, err := s.dispatcher.SubmitScene(r.Context(), name)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrSceneNotFound):
			writeNotFound(w, "scene not found")
		case errors.Is(err, dispatch.ErrEmptyScene), errors.Is(err, catalog.ErrShadeNotFound),
			errors.Is(err, catalog.ErrCodeUnmapped):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "failed to activate scene")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, taskResponse{TaskID: taskID, Status: "accepted"})
}
