package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/bulutsoft-dev/Transmind-PI/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Session state changes, recovery attempts, health results, heartbeat activity and registry reloads",
		Tags:        []string{"events"},
	}, events.SSETypes(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)
		unsubscribe := events.SubscribeAll(s.eventBus, eventCh)
		defer unsubscribe()

		// Send the last health result so a new dashboard is not blank.
		if res, ok := s.options.Prober.Last(); ok {
			if err := send.Data(res.Event()); err != nil {
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
