package messaging

import (
	"context"
	"log/slog"
)

// Router turns one inbound message into a reply body. The empty string means
// no reply should be sent.
type Router interface {
	ProcessMessage(ctx context.Context, from, text string) string
}

// ResponseHandler consumes inbound responses from a Service, runs each through
// the conversation router, and sends the reply back over the same service.
type ResponseHandler struct {
	service Service
	router  Router
}

// NewResponseHandler creates a handler binding a delivery service to a router.
func NewResponseHandler(service Service, router Router) *ResponseHandler {
	return &ResponseHandler{service: service, router: router}
}

// Start launches the consume loop. It returns immediately; the loop runs until
// the context is cancelled or the service's response channel closes.
func (h *ResponseHandler) Start(ctx context.Context) {
	go h.consume(ctx)
	slog.Debug("ResponseHandler started")
}

func (h *ResponseHandler) consume(ctx context.Context) {
	responses := h.service.Responses()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("ResponseHandler stopping due to context cancellation")
			return
		case resp, ok := <-responses:
			if !ok {
				slog.Debug("ResponseHandler response channel closed")
				return
			}
			h.handle(ctx, resp.From, resp.Body)
		}
	}
}

// handle processes one inbound message. Each message is independent; a failed
// send is logged and does not stop the consume loop.
func (h *ResponseHandler) handle(ctx context.Context, from, body string) {
	slog.Debug("ResponseHandler handling message", "from", from, "body_length", len(body))

	reply := h.router.ProcessMessage(ctx, from, body)
	if reply == "" {
		return
	}

	if err := h.service.SendMessage(ctx, from, reply); err != nil {
		slog.Error("ResponseHandler failed to send reply", "error", err, "to", from)
		return
	}
	slog.Info("ResponseHandler reply sent", "to", from)
}
