package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/ada-analyst/console/internal/api"
	"github.com/ada-analyst/console/internal/backend"
	"github.com/ada-analyst/console/internal/chart"
	"github.com/ada-analyst/console/internal/config"
	"github.com/ada-analyst/console/internal/console"
	"github.com/ada-analyst/console/internal/history"
	"github.com/ada-analyst/console/internal/logger"
	"github.com/ada-analyst/console/internal/session"
	"github.com/ada-analyst/console/internal/storage"
	"github.com/ada-analyst/console/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config (default: ada-console.yaml next to the binary)")
	flag.Parse()

	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	if err := run(resolveConfigPath(*configPath)); err != nil {
		fmt.Fprintf(os.Stderr, "ada-console: %v\n", err)
		os.Exit(1)
	}
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv("ADA_CONFIG"); p != "" {
		return p
	}
	exePath, err := os.Executable()
	if err != nil {
		return "ada-console.yaml"
	}
	return filepath.Join(filepath.Dir(exePath), "ada-console.yaml")
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.ToContext(ctx, log)

	client, err := backend.NewClient(cfg.Backend.URL, backend.WithTimeout(cfg.BackendTimeout()))
	if err != nil {
		return fmt.Errorf("creating backend client: %w", err)
	}
	if cfg.HasCredentials() {
		if err := client.Login(ctx, cfg.Backend.Email, cfg.Backend.Password); err != nil {
			// The backend may not require a login; requests will tell.
			log.Warn("backend login failed", "error", err)
		}
	}

	hist, err := history.Open(cfg.Storage.HistoryDatabase, log)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer hist.Close()

	files, err := storage.NewLocalStore(cfg.Storage.DownloadsDirectory)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	ctrl := console.New(client,
		console.WithExporter(chart.NewRenderer()),
		console.WithFiles(files),
		console.WithHistory(hist, cfg.Session.HistoryLimit),
		console.WithReportLink(api.ReportLink),
	)
	sessions := session.NewManager(cfg.Session.MaxSessions, log)

	// Start background session cleanup
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := sessions.CleanupOldSessions(cfg.SessionTimeout()); n > 0 {
					log.Info("expired sessions removed", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.SetupMiddleware(e, cfg, log)

	handlers := api.NewHandlers(&api.Dependencies{
		Console:      ctrl,
		Sessions:     sessions,
		Version:      Version,
		BackendURL:   client.BaseURL(),
		PushInterval: cfg.PushInterval(),
	})
	api.RegisterRoutes(e, handlers)

	embeddedMode := web.HasEmbeddedFiles()
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			log.Warn("failed to register static routes", "error", err)
			embeddedMode = false
		}
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(configPath, cfg, client.BaseURL(), embeddedMode)

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.StartServer(s)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func printBanner(configPath string, cfg *config.AppConfig, backendURL string, embedded bool) {
	mode := "API only"
	if embedded {
		mode = "Console (Embedded)"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           ADA Console Server                              ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Backend:   %-46s║\n", backendURL)
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.Storage.DataDirectory)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if embedded {
		fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
	}
}
