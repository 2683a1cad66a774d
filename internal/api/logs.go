package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/bulutsoft-dev/Transmind-PI/internal/api/models"
	"github.com/bulutsoft-dev/Transmind-PI/internal/events"
	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
)

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Return the newest entries of the in-memory log buffer",
		Tags:        []string{"logs"},
	}, func(_ context.Context, input *models.LogsRequest) (*models.LogsResponse, error) {
		entries := logging.GetBuffer().Tail(input.Limit)
		return &models.LogsResponse{
			Body: models.LogsData{
				Entries: entries,
				Count:   len(entries),
			},
		}, nil
	})

	if s.eventBus == nil {
		return
	}

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends buffered logs first, then streams new logs.",
		Tags:        []string{"logs"},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing falls between the two.
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		for _, entry := range logging.GetBuffer().Tail(0) {
			if err := send.Data(events.NewLogEntryEvent(entry)); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
