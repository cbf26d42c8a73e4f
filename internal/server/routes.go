package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.app.StatusHandler.HealthHandler)

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Publication jobs
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)               // GET (list), POST (enqueue)
	mux.HandleFunc("/api/jobs/", s.app.JobHandler.GetJobHandler) // GET /{id}
	mux.HandleFunc("/api/run", s.app.JobHandler.RunBatchHandler) // POST - run a batch now

	return mux
}

// handleJobsRoute routes GET (list) and POST (create) for /api/jobs
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.JobHandler.ListJobsHandler, s.app.JobHandler.CreateJobHandler)
}
