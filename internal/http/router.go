package httpapi

import (
	"encoding/json"
	"net/http"
)

// NewRouter mounts the task endpoints. wsHandler serves /ws and mw guards
// /tasks; either may be nil.
func NewRouter(svc *Service, wsHandler http.Handler, mw func(http.Handler) http.Handler) http.Handler {
	if mw == nil {
		mw = func(h http.Handler) http.Handler { return h }
	}
	mux := http.NewServeMux()
	mux.Handle("/tasks", mw(http.HandlerFunc(svc.handleTasks)))
	mux.HandleFunc("/add-task", svc.handleAddTask)
	mux.HandleFunc("/edit-task", svc.handleEditTask)
	mux.HandleFunc("/modify-task", svc.handleModifyTask)
	mux.HandleFunc("/health", handleHealth)
	if wsHandler != nil {
		mux.Handle("/ws", wsHandler)
	}
	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "service": "tasksync-devbackend"})
}
