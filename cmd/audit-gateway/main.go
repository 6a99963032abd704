// ABOUTME: Entry point for audit-gateway, the MCP server for the audit workflow tools
// ABOUTME: Provides serve, init, health and token commands

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/audit-gateway/internal/auth"
	"github.com/2389/audit-gateway/internal/config"
	"github.com/2389/audit-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                 _ _ _                   _
  __ _ _   _  __| (_) |_       __ _  __ _| |_ _____      ____ _ _   _
 / _' | | | |/ _' | | __|____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| (_| | |_| | (_| | | ||_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \__,_|\__,_|\__,_|_|\__|     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                              |___/                             |___/
`

// defaultTokenTTL is used by the token command when --ttl is omitted.
const defaultTokenTTL = 30 * 24 * time.Hour

// getConfigPath returns the path to the gateway config file.
// Priority: AUDIT_GATEWAY_CONFIG env var > XDG_CONFIG_HOME/audit-gateway/gateway.yaml > ~/.config/audit-gateway/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("AUDIT_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "audit-gateway", "gateway.yaml")
}

// getDataPath returns the path to the audit-gateway data directory.
// Priority: XDG_DATA_HOME/audit-gateway > ~/.local/share/audit-gateway
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "audit-gateway")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: audit-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                                   Start the gateway server")
		fmt.Println("  init                                    Create a new config file interactively")
		fmt.Println("  health                                  Check gateway health")
		fmt.Println("  token --subject S [--caps a,b] [--ttl]  Mint an MCP access token")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "token":
		err = runToken(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Audit:     %s\n", gateway.AuditMountPath)
	if cfg.LegalDocs.URL != "" {
		green.Print("    ▶ ")
		fmt.Printf("LegalDocs: %s\n", gateway.LegalDocsMountPath)
	}
	green.Print("    ▶ ")
	fmt.Printf("Ledger:    %s\n", cfg.Database.Path)

	switch {
	case cfg.Auth.RequireAuth:
		green.Print("    ▶ ")
		fmt.Println("Auth:      required")
	default:
		yellow.Print("    ▶ ")
		fmt.Print("Auth:      optional")
		gray.Print(" (anonymous callers get default capabilities)")
		fmt.Println()
	}
	if cfg.MCP.Stateless {
		gray.Println("    stateless MCP sessions")
	}

	fmt.Println()

	logger.Info("starting audit-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"stateless", cfg.MCP.Stateless,
	)

	// Create and run gateway
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			mu:    &sync.Mutex{},
			out:   os.Stdout,
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
// Handlers derived via WithAttrs/WithGroup share the parent's mutex.
type colorHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		newAttrs = append(newAttrs, slog.Attr{Key: prefix + a.Key, Value: a.Value})
	}
	return &colorHandler{
		mu:     h.mu,
		out:    h.out,
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		mu:     h.mu,
		out:    h.out,
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// healthURL builds the health endpoint URL for a listen address, mapping
// wildcard hosts to localhost.
func healthURL(httpAddr string) string {
	host, port, err := net.SplitHostPort(httpAddr)
	if err != nil {
		return fmt.Sprintf("http://%s/health", httpAddr)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s/health", net.JoinHostPort(host, port))
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Make HTTP request to health endpoint with context
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL(cfg.Server.HTTPAddr), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	color.New(color.FgGreen).Print("healthy ")
	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

// tokenArgs are the parsed flags of the token command.
type tokenArgs struct {
	subject string
	caps    []string
	ttl     time.Duration
}

func parseTokenArgs(args []string) (*tokenArgs, error) {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	subject := fs.String("subject", "", "Token subject (caller name)")
	caps := fs.String("caps", "audit,runs,legaldocs", "Comma-separated capabilities")
	ttl := fs.Duration("ttl", defaultTokenTTL, "Token lifetime")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	out := &tokenArgs{subject: strings.TrimSpace(*subject), ttl: *ttl}
	if out.subject == "" {
		return nil, errors.New("--subject flag is required")
	}
	if out.ttl <= 0 {
		return nil, errors.New("--ttl must be positive")
	}
	for _, c := range strings.Split(*caps, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out.caps = append(out.caps, c)
		}
	}
	return out, nil
}

// runToken mints a JWT for an MCP client using auth.jwt_secret.
func runToken(args []string) error {
	parsed, err := parseTokenArgs(args)
	if err != nil {
		return err
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt_secret not configured in %s (required for token)", configPath)
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}

	token, err := verifier.Generate(parsed.subject, parsed.caps, parsed.ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	expiresAt := time.Now().Add(parsed.ttl).UTC()
	gray := color.New(color.FgHiBlack)
	gray.Fprintf(os.Stderr, "subject=%s caps=%s expires=%s\n",
		parsed.subject, strings.Join(parsed.caps, ","), expiresAt.Format("Jan 02, 2006"))
	fmt.Println(token)
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("audit-gateway configuration setup")
	fmt.Println("=================================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDbPath := filepath.Join(getDataPath(), "gateway.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	fmt.Println("\n--- Backend Configuration ---")
	authURL := prompt(reader, "Auth/session API URL", "")
	apiURL := prompt(reader, "Document API URL", "")
	bucket := prompt(reader, "Bucket name", "")
	region := prompt(reader, "Region", config.DefaultRegion)

	fmt.Println("\n--- Credentials ---")
	fmt.Println("Values like ${AUDIT_PASSWORD} are expanded from the environment at load time.")
	username := prompt(reader, "Username", "")
	password := prompt(reader, "Password", "${AUDIT_PASSWORD}")
	companyID := prompt(reader, "Company ID", "")
	userID := prompt(reader, "User ID", "")

	fmt.Println("\n--- Legal Docs ---")
	legalDocsURL := prompt(reader, "Legal docs service URL (leave empty to disable)", "")

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate random JWT secret
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

	var cfg strings.Builder
	cfg.WriteString("# audit-gateway configuration\n")
	cfg.WriteString("# Generated by audit-gateway init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  http_addr: %q\n\n", httpAddr)

	cfg.WriteString("backend:\n")
	fmt.Fprintf(&cfg, "  auth_url: %q\n", authURL)
	fmt.Fprintf(&cfg, "  api_url: %q\n", apiURL)
	fmt.Fprintf(&cfg, "  bucket_name: %q\n", bucket)
	fmt.Fprintf(&cfg, "  region: %q\n", region)
	cfg.WriteString("  request_timeout: \"60s\"\n\n")

	cfg.WriteString("credentials:\n")
	fmt.Fprintf(&cfg, "  username: %q\n", username)
	fmt.Fprintf(&cfg, "  password: %q\n", password)
	fmt.Fprintf(&cfg, "  company_id: %s\n", orZero(companyID))
	fmt.Fprintf(&cfg, "  user_id: %s\n\n", orZero(userID))

	cfg.WriteString("polling:\n")
	cfg.WriteString("  settle_delay: \"3s\"\n")
	cfg.WriteString("  timeout: \"3h\"\n")
	cfg.WriteString("  max_requests: 20\n\n")

	if legalDocsURL != "" {
		cfg.WriteString("legaldocs:\n")
		fmt.Fprintf(&cfg, "  url: %q\n\n", legalDocsURL)
	}

	cfg.WriteString("mcp:\n")
	cfg.WriteString("  stateless: true\n\n")

	cfg.WriteString("auth:\n")
	fmt.Fprintf(&cfg, "  jwt_secret: %q\n", jwtSecret)
	cfg.WriteString("  require_auth: true\n\n")

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  path: %q\n\n", dbPath)

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", logLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", logFormat)

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// The file holds credentials and the JWT secret.
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nNext steps:")
	fmt.Println("  audit-gateway token --subject my-client   # mint an MCP token")
	fmt.Println("  audit-gateway serve")

	return nil
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
