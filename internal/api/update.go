package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bulutsoft-dev/Transmind-PI/internal/api/models"
	"github.com/bulutsoft-dev/Transmind-PI/internal/updater"
)

// registerUpdateRoutes registers the self-update endpoints. A disabled
// updater keeps its routes so clients get a 503 with the reason.
func (s *Server) registerUpdateRoutes() {
	svc := s.options.UpdateService
	if svc == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "check-update",
		Method:      http.MethodGet,
		Path:        "/api/update",
		Summary:     "Check for Updates",
		Description: "Check if a newer release is available without downloading it",
		Tags:        []string{"update"},
		Errors:      []int{404, 409, 500, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.UpdateCheckResponse, error) {
		info, err := svc.CheckForUpdate(ctx)
		if err != nil {
			return nil, mapUpdateError(err)
		}
		return &models.UpdateCheckResponse{Body: models.NewUpdateCheckData(info)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-update-status",
		Method:      http.MethodGet,
		Path:        "/api/update/status",
		Summary:     "Get Update Status",
		Description: "Get the current update state and backup availability",
		Tags:        []string{"update"},
		Errors:      []int{503},
	}, func(ctx context.Context, _ *struct{}) (*models.UpdateStatusResponse, error) {
		if !svc.IsEnabled() {
			return nil, disabledError(svc)
		}
		return &models.UpdateStatusResponse{Body: svc.GetStatus(ctx)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "apply-update",
		Method:      http.MethodPost,
		Path:        "/api/update/apply",
		Summary:     "Apply Update",
		Description: "Download and apply the latest release. The node restarts afterwards.",
		Tags:        []string{"update"},
		Errors:      []int{400, 409, 500, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.MessageResponse, error) {
		if err := svc.ApplyUpdate(ctx); err != nil {
			return nil, mapUpdateError(err)
		}
		return &models.MessageResponse{Body: models.MessageData{Message: "Update applied, restarting..."}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "rollback-update",
		Method:      http.MethodPost,
		Path:        "/api/update/rollback",
		Summary:     "Rollback Update",
		Description: "Restore the previously installed binary. The node restarts afterwards.",
		Tags:        []string{"update"},
		Errors:      []int{404, 500, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.MessageResponse, error) {
		if err := svc.Rollback(ctx); err != nil {
			return nil, mapUpdateError(err)
		}
		return &models.MessageResponse{Body: models.MessageData{Message: "Rollback complete, restarting..."}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-service",
		Method:      http.MethodPost,
		Path:        "/api/update/restart",
		Summary:     "Restart Service",
		Tags:        []string{"update"},
		Errors:      []int{500},
	}, func(ctx context.Context, _ *struct{}) (*models.MessageResponse, error) {
		if err := svc.Restart(ctx); err != nil {
			return nil, huma.Error500InternalServerError(err.Error())
		}
		return &models.MessageResponse{Body: models.MessageData{Message: "Restarting..."}}, nil
	})
}

func disabledError(svc updater.Service) error {
	return huma.Error503ServiceUnavailable("Update service disabled: " + svc.DisabledReason())
}

// mapUpdateError converts updater errors to Huma HTTP errors.
func mapUpdateError(err error) error {
	switch updater.Code(err) {
	case updater.ErrCodeInvalidState:
		return huma.Error409Conflict(err.Error())
	case updater.ErrCodeNoUpdate:
		return huma.Error400BadRequest(err.Error())
	case updater.ErrCodeNotFound, updater.ErrCodeNoBackup:
		return huma.Error404NotFound(err.Error())
	case updater.ErrCodeDisabled:
		return huma.Error503ServiceUnavailable(err.Error())
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}
