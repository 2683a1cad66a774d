package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bulutsoft-dev/Transmind-PI/internal/api/models"
	"github.com/bulutsoft-dev/Transmind-PI/internal/heartbeat"
)

// heartbeatManager returns the configured manager or a 503 when the node
// was started without a heartbeat server.
func (s *Server) heartbeatManager() (*heartbeat.Manager, error) {
	if s.options.Heartbeat == nil {
		return nil, huma.Error503ServiceUnavailable("heartbeat is not configured")
	}
	return s.options.Heartbeat, nil
}

func (s *Server) registerHeartbeatRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-heartbeat",
		Method:      http.MethodGet,
		Path:        "/api/heartbeat",
		Summary:     "Heartbeat Status",
		Description: "Local heartbeat state: registration, missed pings and settings",
		Tags:        []string{"heartbeat"},
		Errors:      []int{503},
	}, func(_ context.Context, _ *struct{}) (*models.HeartbeatStatusResponse, error) {
		m, err := s.heartbeatManager()
		if err != nil {
			return nil, err
		}
		return &models.HeartbeatStatusResponse{Body: m.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-heartbeat",
		Method:      http.MethodPost,
		Path:        "/api/heartbeat/start",
		Summary:     "Start Heartbeat",
		Description: "Register with the management server and start pinging",
		Tags:        []string{"heartbeat"},
		Errors:      []int{409, 503},
	}, func(_ context.Context, _ *struct{}) (*models.HeartbeatStatusResponse, error) {
		m, err := s.heartbeatManager()
		if err != nil {
			return nil, err
		}
		// The request context ends with the response; the loop must not.
		if err := m.Start(context.Background()); err != nil {
			return nil, mapHeartbeatError(err)
		}
		return &models.HeartbeatStatusResponse{Body: m.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-heartbeat",
		Method:      http.MethodPost,
		Path:        "/api/heartbeat/stop",
		Summary:     "Stop Heartbeat",
		Tags:        []string{"heartbeat"},
		Errors:      []int{409, 503},
	}, func(_ context.Context, _ *struct{}) (*models.HeartbeatStatusResponse, error) {
		m, err := s.heartbeatManager()
		if err != nil {
			return nil, err
		}
		if err := m.Stop(); err != nil {
			return nil, mapHeartbeatError(err)
		}
		return &models.HeartbeatStatusResponse{Body: m.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-heartbeat-settings",
		Method:      http.MethodPut,
		Path:        "/api/heartbeat/settings",
		Summary:     "Update Heartbeat Settings",
		Description: "Push interval, offline threshold and debug mode to the server, then apply them locally",
		Tags:        []string{"heartbeat"},
		Errors:      []int{400, 502, 503},
	}, func(ctx context.Context, input *models.HeartbeatSettingsRequest) (*models.HeartbeatStatusResponse, error) {
		m, err := s.heartbeatManager()
		if err != nil {
			return nil, err
		}
		if err := m.UpdateSettings(ctx, input.Body); err != nil {
			return nil, mapHeartbeatError(err)
		}
		return &models.HeartbeatStatusResponse{Body: m.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-heartbeat-remote",
		Method:      http.MethodGet,
		Path:        "/api/heartbeat/remote",
		Summary:     "Remote Heartbeat Status",
		Description: "Fetch this device's status as the management server sees it",
		Tags:        []string{"heartbeat"},
		Errors:      []int{502, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.HeartbeatRemoteResponse, error) {
		m, err := s.heartbeatManager()
		if err != nil {
			return nil, err
		}
		status, err := m.RemoteStatus(ctx)
		if err != nil {
			return nil, mapHeartbeatError(err)
		}
		return &models.HeartbeatRemoteResponse{Body: status}, nil
	})
}

func mapHeartbeatError(err error) error {
	switch {
	case errors.Is(err, heartbeat.ErrAlreadyRunning), errors.Is(err, heartbeat.ErrNotRunning):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, heartbeat.ErrInvalidSettings):
		return huma.Error400BadRequest(err.Error())
	default:
		return huma.NewError(http.StatusBadGateway, err.Error())
	}
}
