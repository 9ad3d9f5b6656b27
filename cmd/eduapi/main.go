// Package main is the entry point for the eduapi server.
//
// eduapi hosts educational projects made of lessons and steps, moves them
// through the edit, review, ready and published modes and keeps an
// editable draft of each published project until it is applied.
// Configuration is read from CLI flags, a .env file and server_config.json
// (JWT secret, SMTP, VAPID keys, rate limits, publishing schedule).
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/maruel/eduapi/internal/drafts"
	"github.com/maruel/eduapi/internal/email"
	"github.com/maruel/eduapi/internal/jsonldb"
	"github.com/maruel/eduapi/internal/notify"
	"github.com/maruel/eduapi/internal/publish"
	"github.com/maruel/eduapi/internal/server"
	"github.com/maruel/eduapi/internal/server/handlers"
	"github.com/maruel/eduapi/internal/server/ratelimit"
	"github.com/maruel/eduapi/internal/storage"
	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/eduapi/internal/storage/identity"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"
)

// notificationRetention is how long notifications are kept.
const notificationRetention = 90 * 24 * time.Hour

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "eduapi: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	httpAddr := flag.String("http", "localhost:8080", "Address to listen on (e.g., localhost:8080, :8080, 0.0.0.0:8080). Use 0.0.0.0:port to listen on all interfaces.")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	baseURL := flag.String("base-url", "http://localhost", "Base URL used in notification links (e.g., https://example.com)")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	slog.SetDefault(newLogger(ll))

	if err := os.MkdirAll(*dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	envPath := filepath.Join(*dataDir, ".env")
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		if isatty.IsTerminal(os.Stdin.Fd()) {
			if err := runOnboarding(*dataDir); err != nil {
				return fmt.Errorf("onboarding failed: %w", err)
			}
		}
	}

	env, err := loadDotEnv(*dataDir)
	if err != nil {
		return err
	}

	// Creates server_config.json with defaults and fresh secrets if missing.
	serverCfg, err := storage.LoadServerConfig(*dataDir)
	if err != nil {
		return fmt.Errorf("failed to load server_config.json: %w", err)
	}

	// Flags win over .env values.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	for name, dst := range map[string]*string{"http": httpAddr, "log-level": logLevel, "base-url": baseURL} {
		key := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		if v := env[key]; !set[name] && v != "" {
			*dst = v
		}
	}

	// Normalize addr: ":8080" becomes "localhost:8080"
	addr := *httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	// Append port to base URL if localhost and no port specified
	if u, err := url.Parse(*baseURL); err == nil && u.Port() == "" && u.Hostname() == "localhost" {
		if _, p, err := net.SplitHostPort(addr); err == nil {
			u.Host = net.JoinHostPort(u.Hostname(), p)
			*baseURL = u.String()
		}
	}

	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}

	svc, err := openServices(*dataDir)
	if err != nil {
		return err
	}
	if n, err := svc.Notification.DeleteOlderThan(storage.ToTime(time.Now().Add(-notificationRetention))); err != nil {
		slog.WarnContext(ctx, "Failed to delete old notifications", "err", err)
	} else if n > 0 {
		slog.InfoContext(ctx, "Deleted old notifications", "count", n)
	}

	opts := notify.Options{
		Users:         svc.User,
		Notifications: svc.Notification,
		Subscriptions: svc.PushSubscription,
		StaffEmails:   serverCfg.StaffEmails,
		BaseURL:       *baseURL,
		NotifyConfig:  serverCfg.Notify,
	}
	if serverCfg.SMTP.Enabled() {
		opts.Mailer = &email.Service{Config: serverCfg.SMTP}
		slog.InfoContext(ctx, "SMTP configured", "host", serverCfg.SMTP.Host, "port", serverCfg.SMTP.Port)
	}
	if serverCfg.VAPID.Enabled() {
		opts.Pusher = &notify.WebPush{VAPID: serverCfg.VAPID}
	}
	dispatcher := notify.New(opts)
	svc.Machine = publish.NewMachine(svc.Drafts, svc.Perms, dispatcher)
	scheduler := &publish.Scheduler{
		Machine:         svc.Machine,
		SweepInterval:   serverCfg.Publishing.SweepInterval(),
		SummaryInterval: serverCfg.Publishing.ReviewSummaryInterval(),
		SummaryLimit:    serverCfg.Publishing.ReviewSummaryLimit,
		Notifier:        dispatcher,
	}

	// Watch own executable for modifications (for development restarts)
	if err := watchExecutable(ctx, stop); err != nil {
		return fmt.Errorf("failed to watch executable: %w", err)
	}

	limiters := ratelimit.NewConfig(serverCfg.RateLimits)
	defer limiters.Close()
	buildVersion, buildGoVersion, buildRevision, buildDirty := getBuildInfo()
	cfg := &server.Config{
		ServerConfig: serverCfg,
		BaseURL:      *baseURL,
		Version:      buildVersion,
		GoVersion:    buildGoVersion,
		Revision:     buildRevision,
		Dirty:        buildDirty,
		Limiters:     limiters,
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(svc, cfg),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return dispatcher.Run(ctx) })
	eg.Go(func() error { return scheduler.Run(ctx) })
	eg.Go(func() error {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "baseURL", *baseURL, "version", buildVersion)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
		return nil
	})
	return eg.Wait()
}

// openServices opens the content database and the identity tables under
// dataDir. Machine is left for the caller to set.
func openServices(dataDir string) (*handlers.Services, error) {
	dbDir := filepath.Join(dataDir, "db")
	if err := os.MkdirAll(dbDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}
	apps, err := content.LoadApps(dataDir)
	if err != nil {
		return nil, err
	}
	db, err := jsonldb.OpenDB(filepath.Join(dataDir, "content"))
	if err != nil {
		return nil, fmt.Errorf("failed to open content database: %w", err)
	}
	cs, err := content.OpenStore(db, apps)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize content store: %w", err)
	}
	userService, err := identity.NewUserService(filepath.Join(dbDir, "users.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize user service: %w", err)
	}
	notifService, err := identity.NewNotificationService(filepath.Join(dbDir, "notifications.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize notification service: %w", err)
	}
	pushService, err := identity.NewPushSubscriptionService(filepath.Join(dbDir, "push_subscriptions.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize push subscription service: %w", err)
	}
	return &handlers.Services{
		Content:          cs,
		Drafts:           drafts.New(cs),
		User:             userService,
		Perms:            identity.NewPermissions(userService),
		Notification:     notifService,
		PushSubscription: pushService,
	}, nil
}

func newLogger(ll *slog.LevelVar) *slog.Logger {
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			// Drop localhost IPs (not useful in logs).
			if a.Key == "ip" {
				if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
					return slog.Attr{}
				}
			}
			skip := false
			switch t := a.Value.Any().(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case uint64:
				skip = t == 0
			case int64:
				skip = t == 0
			case time.Time:
				skip = t.IsZero()
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("eduapi %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}

func loadDotEnv(dataDir string) (map[string]string, error) {
	env := make(map[string]string)
	path := filepath.Join(dataDir, ".env")
	envContent, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir flag, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, err
	}
	for line := range strings.SplitSeq(string(envContent), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if strings.HasPrefix(val, "'") || strings.HasSuffix(val, "'") {
			if strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'") {
				return nil, fmt.Errorf("single quotes are not supported for wrapping in .env: %s", line)
			}
			return nil, fmt.Errorf("unbalanced single quotes in .env: %s", line)
		}
		if strings.HasPrefix(val, "\"") {
			unquoted, err := strconv.Unquote(val)
			if err != nil {
				return nil, fmt.Errorf("failed to unquote %s: %w", key, err)
			}
			val = unquoted
		}
		env[key] = val
	}
	return env, nil
}

func saveDotEnv(dataDir string, env map[string]string) error {
	path := filepath.Join(dataDir, ".env")
	var lines []string
	for k, v := range env {
		if v != "" {
			lines = append(lines, fmt.Sprintf("%s=%s", k, v))
		}
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600)
}

func runOnboarding(dataDir string) error {
	fmt.Println("Welcome to eduapi! Let's set up your configuration.")
	fmt.Println("")
	reader := bufio.NewReader(os.Stdin)
	env := make(map[string]string)

	fmt.Println("--- Base URL Setup ---")
	fmt.Println("The base URL is used in the links of notification emails and pushes.")
	fmt.Print("Base URL (default: http://localhost): ")
	val, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read base URL: %w", err)
	}
	env["BASE_URL"] = strings.TrimSpace(val)

	fmt.Println("\n--- Listen Address ---")
	fmt.Print("Address (default: localhost:8080): ")
	if val, err = reader.ReadString('\n'); err != nil {
		return fmt.Errorf("failed to read address: %w", err)
	}
	env["HTTP"] = strings.TrimSpace(val)

	fmt.Println("")
	if err := saveDotEnv(dataDir, env); err != nil {
		return fmt.Errorf("failed to save .env file: %w", err)
	}
	fmt.Printf("Configuration saved to %s/.env\n", dataDir)
	fmt.Println("SMTP, staff emails and the publishing schedule live in server_config.json.")
	fmt.Println("")
	return nil
}

// watchExecutable watches the current executable for modifications and calls
// stop to trigger graceful shutdown when detected. This enables seamless
// restarts during development.
func watchExecutable(ctx context.Context, stop context.CancelFunc) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(exe); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) {
					slog.InfoContext(ctx, "Executable modified, initiating shutdown")
					stop()
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching executable", "err", err)
			}
		}
	}()
	return nil
}
