// Package api wires the CareBridge modules together and serves the HTTP
// surface: the Twilio webhook, handoff management, and health endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carebridge/internal/embedding"
	"carebridge/internal/flow"
	"carebridge/internal/genai"
	"carebridge/internal/knowledge"
	"carebridge/internal/messaging"
	"carebridge/internal/store"
	"carebridge/internal/twiliowhatsapp"
	"carebridge/internal/whatsapp"
)

const (
	// DefaultAddr is the default API listen address.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Transport selects the message delivery channel.
type Transport string

const (
	// TransportTwilio delivers via the Twilio WhatsApp API (webhook inbound).
	TransportTwilio Transport = "twilio"
	// TransportWhatsApp delivers via a direct whatsmeow connection.
	TransportWhatsApp Transport = "whatsapp"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr              string
	Transport         Transport
	TopicFilter       bool
	LocalEmbedder     bool
	OnboardingVariant flow.Variant
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the API listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTransport selects the message delivery channel.
func WithTransport(t Transport) Option {
	return func(o *Opts) { o.Transport = t }
}

// WithTopicFilter enables the health-domain topic filter on the responder.
func WithTopicFilter() Option {
	return func(o *Opts) { o.TopicFilter = true }
}

// WithLocalEmbedder uses the deterministic in-process embedder for retrieval
// instead of the OpenAI embeddings API.
func WithLocalEmbedder() Option {
	return func(o *Opts) { o.LocalEmbedder = true }
}

// WithOnboardingVariant selects the onboarding question sequence.
func WithOnboardingVariant(v flow.Variant) Option {
	return func(o *Opts) { o.OnboardingVariant = v }
}

// Server holds the wired CareBridge modules behind the HTTP surface.
type Server struct {
	st           store.Store
	msgService   messaging.Service
	twilioSvc    *messaging.TwilioService // non-nil when Twilio transport is active
	conversation *flow.Conversation
	handoff      *flow.HandoffCoordinator
	knowledge    *knowledge.Store
	httpServer   *http.Server
}

// Run builds all modules from the given options and serves until a shutdown
// signal arrives. It blocks for the lifetime of the process.
func Run(waOpts []whatsapp.Option, storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	opts := Opts{
		Addr:      DefaultAddr,
		Transport: TransportTwilio,
	}
	for _, opt := range apiOpts {
		opt(&opts)
	}
	slog.Debug("api.Run: options applied", "addr", opts.Addr, "transport", opts.Transport, "topic_filter", opts.TopicFilter, "local_embedder", opts.LocalEmbedder)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	gaClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize GenAI client: %w", err)
	}

	var embedder embedding.Embedder
	if opts.LocalEmbedder {
		embedder = embedding.NewLocalEmbedder(0)
		slog.Info("api.Run: using local deterministic embedder")
	} else {
		embedder = embedding.NewOpenAIEmbedder(gaClient)
	}

	ks := knowledge.NewStore(embedder)
	if err := ks.Load(ctx, knowledge.DefaultCorpus()); err != nil {
		return fmt.Errorf("failed to load knowledge corpus: %w", err)
	}
	slog.Info("api.Run: knowledge corpus loaded", "documents", ks.Len())

	var responderOpts []flow.ResponderOption
	if opts.TopicFilter {
		responderOpts = append(responderOpts, flow.WithTopicFilter())
	}
	onboarding := flow.NewOnboarding(st, opts.OnboardingVariant)
	responder := flow.NewResponder(st, embedder, ks, gaClient, responderOpts...)
	handoff := flow.NewHandoffCoordinator(st)
	conversation := flow.NewConversation(st, onboarding, responder, handoff)

	server := &Server{
		st:           st,
		conversation: conversation,
		handoff:      handoff,
		knowledge:    ks,
	}

	switch opts.Transport {
	case TransportWhatsApp:
		waClient, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return fmt.Errorf("failed to initialize WhatsApp client: %w", err)
		}
		server.msgService = messaging.NewWhatsAppService(waClient)
	case TransportTwilio:
		twClient, err := twiliowhatsapp.NewClient()
		if err != nil {
			return fmt.Errorf("failed to initialize Twilio client: %w", err)
		}
		twilioSvc := messaging.NewTwilioService(twClient)
		server.msgService = twilioSvc
		server.twilioSvc = twilioSvc
	default:
		return fmt.Errorf("unknown transport %q", opts.Transport)
	}

	if err := server.msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer server.msgService.Stop()

	respHandler := messaging.NewResponseHandler(server.msgService, conversation)
	respHandler.Start(ctx)

	server.httpServer = &http.Server{
		Addr:    opts.Addr,
		Handler: server.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api.Run: HTTP server listening", "addr", opts.Addr)
		if err := server.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		slog.Info("api.Run: shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := server.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}
	slog.Info("api.Run: shutdown complete")
	return nil
}

// routes builds the HTTP mux for this server.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	if s.twilioSvc != nil {
		mux.HandleFunc("/webhook/twilio", s.twilioSvc.WebhookHandler)
	}
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/handoff", s.handoffHandler)
	mux.HandleFunc("/handoff/", s.handoffHandler)
	mux.HandleFunc("/agents", s.agentsHandler)
	return mux
}

// buildStore selects a store implementation from the configured DSN: Postgres
// for PostgreSQL-style connection strings, SQLite for file paths, in-memory
// when no DSN is set.
func buildStore(storeOpts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range storeOpts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("api.buildStore: no DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		slog.Info("api.buildStore: using PostgreSQL store")
		return store.NewPostgresStore(storeOpts...)
	}
	slog.Info("api.buildStore: using SQLite store", "path", cfg.DSN)
	return store.NewSQLiteStore(storeOpts...)
}

// NewServer assembles a Server from pre-built modules. Used by tests and
// callers that manage their own lifecycle.
func NewServer(st store.Store, msgService messaging.Service, conversation *flow.Conversation, handoff *flow.HandoffCoordinator, ks *knowledge.Store) *Server {
	server := &Server{
		st:           st,
		msgService:   msgService,
		conversation: conversation,
		handoff:      handoff,
		knowledge:    ks,
	}
	if twilioSvc, ok := msgService.(*messaging.TwilioService); ok {
		server.twilioSvc = twilioSvc
	}
	return server
}

// Handler exposes the server's routes for testing.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// pendingCount is a small health probe helper.
func (s *Server) pendingCount() (int, error) {
	pending, err := s.st.PendingHandoffs()
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}
