package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListTasks returns all in-flight transmission sequences.
func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := s.dispatcher.ActiveTasks()
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

// handleCancelTask cancels an in-flight sequence by task ID.
//
// Cancelling an already-finished task returns 404. Cancellation is
// asynchronous: remaining transmissions stop at the next firing boundary.
func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		writeBadRequest(w, "task ID is required")
		return
	}

	if !s.dispatcher.Cancel(taskID) {
		writeNotFound(w, "task not found or already finished")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"task_id": taskID, "status": "cancelled"})
}
