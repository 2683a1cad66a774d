package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bulutsoft-dev/Transmind-PI/internal/api/models"
	"github.com/bulutsoft-dev/Transmind-PI/internal/stream"
)

// registerStreamHandlers mounts the endpoints that write raw bodies. They sit
// on the mux directly because huma buffers typed responses.
func (s *Server) registerStreamHandlers() {
	s.mux.Handle("GET /stream", WithCORS(s.cors, http.HandlerFunc(s.handleStream)))
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/stream", http.StatusFound)
	})

	if b := s.options.Broadcaster; b != nil {
		s.mux.Handle("GET /stream/shared", WithCORS(s.cors, b))
		s.mux.Handle("GET /snapshot.jpg", WithCORS(s.cors, http.HandlerFunc(s.handleSnapshot)))
	}

	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, "no route for "+r.Method+" "+r.URL.Path)
	})
}

// handleStream gives the viewer its own session on the active source. An
// open failure is reported as 503 before anything else is written.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	session := stream.NewSession(s.options.Source, s.options.SessionOptions...)
	s.options.Sessions.Add(session)

	logger := s.logger.With("session", session.ID(), "remote_addr", r.RemoteAddr)
	if err := session.Open(r.Context()); err != nil {
		logger.Warn("Stream open failed", "error", err)
		writeProblem(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	h := w.Header()
	h.Set("Content-Type", stream.ContentType)
	h.Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	logger.Info("Viewer connected")
	if err := session.Serve(r.Context(), w); err != nil {
		logger.Error("Stream ended", "error", err, "kind", stream.KindOf(err))
		return
	}
	logger.Info("Viewer disconnected")
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	frame, ok := s.options.Broadcaster.Snapshot()
	if !ok {
		writeProblem(w, http.StatusServiceUnavailable, "no frame captured yet")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(frame)
}

// writeProblem writes an RFC 9457 body shaped like huma's own errors.
func writeProblem(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(huma.NewError(status, detail))
}

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/sessions",
		Summary:     "List Sessions",
		Description: "List live stream sessions with frame counts and recovery state",
		Tags:        []string{"streams"},
	}, func(_ context.Context, _ *struct{}) (*models.SessionListResponse, error) {
		sessions := s.options.Sessions.List()
		return &models.SessionListResponse{
			Body: models.SessionListData{
				Sessions: sessions,
				Count:    len(sessions),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "close-session",
		Method:      http.MethodDelete,
		Path:        "/api/sessions/{id}",
		Summary:     "Close Session",
		Description: "Disconnect one viewer and release its source handle",
		Tags:        []string{"streams"},
		Errors:      []int{404},
	}, func(_ context.Context, input *struct {
		ID string `path:"id" doc:"Session identifier"`
	}) (*models.MessageResponse, error) {
		session, ok := s.options.Sessions.Get(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("session not found: " + input.ID)
		}
		session.Close()
		return &models.MessageResponse{Body: models.MessageData{Message: "session closed"}}, nil
	})
}
