// ABOUTME: Gateway orchestrator that wires the backend clients, tool packs and MCP mounts
// ABOUTME: Owns the HTTP server, run ledger store, and health/docs endpoints lifecycle

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/2389/audit-gateway/internal/audit"
	"github.com/2389/audit-gateway/internal/auth"
	"github.com/2389/audit-gateway/internal/backend"
	"github.com/2389/audit-gateway/internal/builtins"
	"github.com/2389/audit-gateway/internal/config"
	"github.com/2389/audit-gateway/internal/legaldocs"
	"github.com/2389/audit-gateway/internal/mcp"
	"github.com/2389/audit-gateway/internal/packs"
	"github.com/2389/audit-gateway/internal/poll"
	"github.com/2389/audit-gateway/internal/store"
	"github.com/2389/audit-gateway/internal/transfer"
)

// APIVersion is reported by the health endpoint.
const APIVersion = "1.1.0"

// Mount paths for the two tool surfaces.
const (
	AuditMountPath     = "/audit_agent/mcp"
	LegalDocsMountPath = "/legaldocs/mcp"
)

// Capabilities granted to anonymous callers on each mount when auth is optional.
var (
	auditMountCaps     = []string{"audit", "runs"}
	legalDocsMountCaps = []string{"legaldocs"}
)

// Gateway orchestrates the audit-gateway server components.
// It owns the HTTP server hosting every MCP mount plus health and docs.
type Gateway struct {
	config     *config.Config
	store      *store.SQLiteStore
	backend    *backend.Client
	legalDocs  *legaldocs.Client
	resolver   *auth.Resolver
	httpServer *http.Server
	logger     *slog.Logger

	// mcpTokens maps pre-shared MCP access tokens to capabilities
	mcpTokens *mcp.TokenStore

	// mounts holds one tool surface per MCP path, in registration order
	mounts []*mount
}

// mount is one MCP endpoint with its own registry and router.
type mount struct {
	title    string
	registry *packs.Registry
	router   *packs.Router
	server   *mcp.Server
}

// initStore creates the run ledger store from config and environment.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("AUDIT_GATEWAY_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// createResolver builds the token resolver from the static tokens and, when
// a secret is configured, the JWT verifier.
func createResolver(cfg *config.Config, tokens *mcp.TokenStore, logger *slog.Logger) (*auth.Resolver, error) {
	for _, t := range cfg.Auth.Tokens {
		tokens.Add(t.Token, t.Capabilities)
	}

	if cfg.Auth.JWTSecret == "" {
		if cfg.Auth.RequireAuth {
			logger.Info("auth required; accepting static tokens only", "static_tokens", tokens.TokenCount())
		} else {
			logger.Warn("MCP auth optional - anonymous callers get each mount's default capabilities")
		}
		return auth.NewResolver(nil, tokens), nil
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}
	logger.Info("MCP auth enabled (static tokens + JWT)",
		"static_tokens", tokens.TokenCount(),
		"require_auth", cfg.Auth.RequireAuth,
	)
	return auth.NewResolver(verifier, tokens), nil
}

// newMount registers the packs in a fresh registry and builds the MCP server for path.
func (g *Gateway) newMount(logger *slog.Logger, title, path string, defaultCaps []string, builtinPacks ...*packs.BuiltinPack) (*mount, error) {
	registry := packs.NewRegistry(logger.With("component", "pack-registry", "mount", path))
	for _, pack := range builtinPacks {
		if err := registry.RegisterBuiltinPack(pack); err != nil {
			registry.Close()
			return nil, fmt.Errorf("registering %s on %s: %w", pack.ID, path, err)
		}
	}
	router := packs.NewRouter(packs.RouterConfig{
		Registry: registry,
		Logger:   logger.With("component", "pack-router", "mount", path),
	})

	server, err := mcp.NewServer(mcp.Config{
		Name:        "audit-gateway",
		Version:     APIVersion,
		Path:        path,
		Registry:    registry,
		Router:      router,
		Logger:      logger,
		Resolver:    g.resolver,
		RequireAuth: g.config.Auth.RequireAuth,
		DefaultCaps: defaultCaps,
		Stateless:   g.config.MCP.Stateless,
	})
	if err != nil {
		registry.Close()
		return nil, fmt.Errorf("creating MCP server for %s: %w", path, err)
	}

	return &mount{title: title, registry: registry, router: router, server: server}, nil
}

// registerMounts builds the audit and legal docs mounts.
func (g *Gateway) registerMounts(mux *http.ServeMux, logger *slog.Logger) error {
	cfg := g.config
	httpClient := &http.Client{Timeout: cfg.Backend.RequestTimeout}

	pipeline := transfer.NewPipeline(transfer.Config{
		Uploader:   g.backend,
		HTTPClient: httpClient,
		CompanyID:  cfg.Credentials.CompanyID,
		UserID:     cfg.Credentials.UserID,
		Logger:     logger.With("component", "transfer"),
	})
	poller := poll.New(poll.Config{
		Checker:     g.backend,
		MaxRequests: cfg.Polling.MaxRequests,
		Timeout:     cfg.Polling.Timeout,
		Logger:      logger.With("component", "poller"),
	})
	orchestrator := audit.New(audit.Config{
		Backend:     g.backend,
		Uploader:    pipeline,
		Poller:      poller,
		Recorder:    audit.NewLedgerRecorder(g.store),
		Username:    cfg.Credentials.Username,
		Region:      cfg.Backend.Region,
		SettleDelay: cfg.Polling.SettleDelay,
		Logger:      logger.With("component", "audit"),
	})

	auditMount, err := g.newMount(logger, "Audit agent", AuditMountPath, auditMountCaps,
		builtins.AuditPack(builtins.AuditDeps{
			Backend:  g.backend,
			Runner:   orchestrator,
			Username: cfg.Credentials.Username,
			Logger:   logger.With("component", "audit-pack"),
		}),
		builtins.RunsPack(g.store),
	)
	if err != nil {
		return err
	}
	g.mounts = append(g.mounts, auditMount)

	if g.legalDocs != nil {
		legalMount, err := g.newMount(logger, "Legal documents", LegalDocsMountPath, legalDocsMountCaps,
			builtins.LegalDocsPack(g.legalDocs),
		)
		if err != nil {
			return err
		}
		g.mounts = append(g.mounts, legalMount)
	} else {
		g.logger.Warn("legaldocs.url not set - legal docs mount disabled")
	}

	for _, m := range g.mounts {
		m.server.RegisterRoutes(mux)
		g.logger.Info("MCP mount enabled", "path", m.server.Path(), "packs", len(m.registry.ListBuiltinPacks()))
	}
	return nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	gw := &Gateway{
		config:    cfg,
		store:     s,
		logger:    logger.With("component", "gateway"),
		mcpTokens: mcp.NewTokenStore(),
	}

	gw.backend, err = backend.NewClient(backend.Config{
		AuthURL:    cfg.Backend.AuthURL,
		APIURL:     cfg.Backend.APIURL,
		BucketName: cfg.Backend.BucketName,
		Region:     cfg.Backend.Region,
		Credentials: backend.Credentials{
			Username:  cfg.Credentials.Username,
			Password:  cfg.Credentials.Password,
			CompanyID: cfg.Credentials.CompanyID,
			UserID:    cfg.Credentials.UserID,
		},
		HTTPClient: &http.Client{Timeout: cfg.Backend.RequestTimeout},
		Logger:     logger.With("component", "backend"),
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("creating backend client: %w", err)
	}

	if cfg.LegalDocs.URL != "" {
		gw.legalDocs = legaldocs.NewClient(legaldocs.Config{
			URL:        cfg.LegalDocs.URL,
			HTTPClient: &http.Client{Timeout: cfg.Backend.RequestTimeout},
			Logger:     logger.With("component", "legaldocs"),
		})
	}

	gw.resolver, err = createResolver(cfg, gw.mcpTokens, gw.logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	mux := http.NewServeMux()

	// Health endpoint - no auth required
	mux.HandleFunc("GET /health", gw.handleHealth)

	// Tool catalog - filtered by the caller's capabilities
	docsAuth := auth.HTTPAuthMiddleware(gw.resolver, cfg.Auth.RequireAuth, &auth.AuthContext{
		PrincipalID:  "anonymous",
		Capabilities: append(append([]string{}, auditMountCaps...), legalDocsMountCaps...),
	})
	mux.Handle("GET /docs", docsAuth(http.HandlerFunc(gw.handleDocs)))

	if err := gw.registerMounts(mux, logger); err != nil {
		gw.closeMounts()
		_ = s.Close()
		return nil, err
	}

	// No write timeout: create_audit_process holds its POST open for hours.
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the root HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// setupListener creates the TCP listener for HTTP.
func (g *Gateway) setupListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener()
	if err != nil {
		return err
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// closeMounts releases every mount's registry.
func (g *Gateway) closeMounts() {
	for _, m := range g.mounts {
		m.registry.Close()
	}
}

// Shutdown gracefully stops the HTTP server and releases resources.
// In-flight tool calls that outlive ctx are cut off.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "store close", g.store.Close())

	g.closeMounts()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Message    string `json:"message"`
	APIVersion string `json:"api_version"`
	Timestamp  string `json:"timestamp"`
}

// handleHealth reports liveness with the API version and server local time.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Message:    "Welcome to the audit gateway!",
		APIVersion: APIVersion,
		Timestamp:  time.Now().Format(time.DateTime),
	})
}
