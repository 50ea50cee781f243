// Command adactl drives one console session from the command line: upload a
// dataset, ask questions, and save the report or the last chart.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/ada-analyst/console/internal/backend"
	"github.com/ada-analyst/console/internal/config"
	"github.com/ada-analyst/console/internal/console"
	"github.com/ada-analyst/console/internal/history"
	"github.com/ada-analyst/console/internal/logger"
	"github.com/ada-analyst/console/internal/models"
	"github.com/ada-analyst/console/internal/session"
	"github.com/ada-analyst/console/internal/storage"
	"github.com/ada-analyst/console/internal/view"
)

// questions collects repeated -q flags.
type questions []string

func (q *questions) String() string { return strings.Join(*q, "; ") }

func (q *questions) Set(v string) error {
	*q = append(*q, v)
	return nil
}

type options struct {
	backendURL string
	file       string
	questions  []string
	reportPath string
	chartPath  string
	cleanup    bool
	asJSON     bool
}

// errFailed is returned when a step failed and the failure was already shown
// in the printed view.
var errFailed = errors.New("a step failed")

func main() {
	var (
		configFile = flag.String("config", "", "Path to a console YAML config (optional)")
		backendURL = flag.String("backend", "", "Backend base URL (overrides config)")
		file       = flag.String("file", "", "Dataset to upload (.csv, .xls, .xlsx)")
		reportPath = flag.String("report", "", "Save the dataset report to this file or directory")
		chartPath  = flag.String("chart", "", "Save the last chart as PNG to this file or directory")
		cleanup    = flag.Bool("cleanup", false, "Ask the backend to delete expired uploads")
		asJSON     = flag.Bool("json", false, "Print views as JSON")
		verbose    = flag.Bool("verbose", false, "Enable debug logging to stderr")
		qs         questions
	)
	flag.Var(&qs, "q", "Question to ask (repeatable)")
	flag.Parse()

	if *file == "" && !*cleanup {
		fmt.Fprintln(os.Stderr, "Usage: adactl -file <dataset> [-q <question>]... [-report <path>] [-chart <path>]")
		fmt.Fprintln(os.Stderr, "       adactl -cleanup")
		flag.PrintDefaults()
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *backendURL != "" {
		cfg.Backend.URL = *backendURL
	}

	level := cfg.Log.Level
	if *verbose {
		level = "debug"
	}
	log := logger.New(level, "text", os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logger.ToContext(ctx, log)

	opts := options{
		backendURL: cfg.Backend.URL,
		file:       *file,
		questions:  qs,
		reportPath: *reportPath,
		chartPath:  *chartPath,
		cleanup:    *cleanup,
		asJSON:     *asJSON,
	}

	client, err := backend.NewClient(opts.backendURL, backend.WithTimeout(cfg.BackendTimeout()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid backend: %v\n", err)
		os.Exit(1)
	}
	if cfg.HasCredentials() {
		if err := client.Login(ctx, cfg.Backend.Email, cfg.Backend.Password); err != nil {
			log.Warn("backend login failed", "error", err)
		}
	}

	if err := run(ctx, client, opts, os.Stdout); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "adactl: %v\n", err)
		}
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		return config.FromEnvironment()
	}
	return config.LoadConfig(path)
}

// run performs the requested steps on a fresh session and prints the view
// after each one.
func run(ctx context.Context, b console.Backend, o options, out io.Writer) error {
	log := logger.FromContext(ctx)

	if o.cleanup {
		ctrl := console.New(b)
		n, err := ctrl.Cleanup(ctx)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		fmt.Fprintf(out, "Deleted %d expired uploads\n", n)
		if o.file == "" {
			return nil
		}
	}

	scratch, err := os.MkdirTemp("", "adactl-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	files, err := storage.NewLocalStore(scratch)
	if err != nil {
		return err
	}
	hist, err := history.Open("", log)
	if err != nil {
		return err
	}
	defer hist.Close()

	ctrl := console.New(b, console.WithFiles(files), console.WithHistory(hist, history.DefaultLimit))
	s := session.New(uuid.NewString())

	show := func() error {
		v := ctrl.View(ctx, s)
		if o.asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		}
		if err := view.WriteText(out, v); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out)
		return err
	}

	f, err := os.Open(o.file)
	if err != nil {
		return err
	}
	err = ctrl.SubmitUpload(ctx, s, filepath.Base(o.file), f)
	f.Close()
	if perr := show(); perr != nil {
		return perr
	}
	if err != nil {
		log.Debug("upload failed", "error", err)
		return errFailed
	}

	failed := false
	for _, q := range o.questions {
		if _, err := ctrl.SubmitQuestion(ctx, s, q); err != nil {
			if errors.Is(err, session.ErrEmptyQuestion) {
				continue
			}
			log.Debug("question failed", "question", q, "error", err)
			failed = true
		}
		if err := show(); err != nil {
			return err
		}
	}

	if o.reportPath != "" {
		info, err := ctrl.SaveReport(ctx, s)
		if err != nil {
			fmt.Fprintf(out, "Report: %v\n", err)
			failed = true
		} else if err := export(ctrl, s, info, o.reportPath, out); err != nil {
			return err
		}
	}

	if o.chartPath != "" {
		info, err := ctrl.DownloadChartImage(ctx, s)
		if err != nil {
			fmt.Fprintf(out, "Chart: %s\n", s.Snapshot().Notice)
			failed = true
		} else if err := export(ctrl, s, info, o.chartPath, out); err != nil {
			return err
		}
	}

	if failed {
		return errFailed
	}
	return nil
}

// export copies a saved file to dest. A directory dest keeps the file's own
// name.
func export(ctrl *console.Controller, s *session.Session, info *models.FileInfo, dest string, out io.Writer) error {
	if st, err := os.Stat(dest); err == nil && st.IsDir() {
		dest = filepath.Join(dest, info.Name)
	}

	rc, _, err := ctrl.OpenFile(s.ID(), info.ID)
	if err != nil {
		return err
	}
	defer rc.Close()

	w, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, rc); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved %s\n", dest)
	return nil
}
