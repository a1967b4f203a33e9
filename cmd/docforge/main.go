// docforge manages a corpus of versioned markdown documents: serve the admin
// API, run the corpus QA validator, or write the export artifacts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/docforge/docforge/internal/export"
	"github.com/docforge/docforge/internal/gitsvc"
	"github.com/docforge/docforge/internal/lifecycle"
	"github.com/docforge/docforge/internal/qa"
	"github.com/docforge/docforge/internal/repository"
	"github.com/docforge/docforge/internal/server"
	"github.com/docforge/docforge/internal/server/handlers"
	"github.com/docforge/docforge/internal/webhook"
	"github.com/docforge/docforge/internal/workspace"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "docforge: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: docforge <serve|check|export> [flags]")
	}
	switch os.Args[1] {
	case "serve":
		return cmdServe(os.Args[2:])
	case "check":
		return cmdCheck(os.Args[2:])
	case "export":
		return cmdExport(os.Args[2:])
	default:
		return fmt.Errorf("unknown command %q; usage: docforge <serve|check|export> [flags]", os.Args[1])
	}
}

// storageFlags are the flags every subcommand shares to pick a backend.
type storageFlags struct {
	docsDir  string
	sqlite   string
	logLevel string
}

func (s *storageFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.docsDir, "docs-dir", "./docs", "Documents directory")
	fs.StringVar(&s.sqlite, "sqlite", "", "SQLite database path; replaces the directory backend when set")
	fs.StringVar(&s.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// open returns the selected workspace and a close function.
func (s *storageFlags) open() (workspace.Workspace, func(), error) {
	if s.sqlite != "" {
		db, err := workspace.OpenSQLite(s.sqlite)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	}
	ws, err := workspace.NewDir(s.docsDir)
	if err != nil {
		return nil, nil, err
	}
	return ws, func() {}, nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var sf storageFlags
	sf.register(fs)
	httpAddr := fs.String("http", "localhost:8080", "Address to listen on (e.g., localhost:8080, :8080)")
	assetsDir := fs.String("assets-dir", "", "Public assets directory for QA asset checks")
	actor := fs.String("actor", "", "Actor identity recorded in audit entries and git commits")
	useGit := fs.Bool("git", false, "Commit every mutation when the docs dir is (or becomes) a git repo")
	watch := fs.Bool("watch", false, "Invalidate the cache on external file changes (dev mode, dir backend only)")
	publicExport := fs.Bool("public", false, "Public-export mode: only official, public docs on default paths")
	webhookURL := fs.String("webhook-url", envOr("DOCFORGE_WEBHOOK_URL", ""), "Update-feed webhook endpoint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unknown arguments: %v", fs.Args())
	}
	setupLogger(sf.logLevel)

	ws, closeWS, err := sf.open()
	if err != nil {
		return err
	}
	defer closeWS()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := repository.New(ws, *publicExport)
	if err := repo.Load(ctx); err != nil {
		return err
	}

	opts := []lifecycle.Option{lifecycle.WithActor(*actor)}
	if *useGit {
		if sf.sqlite != "" {
			return fmt.Errorf("-git requires the directory backend")
		}
		git, err := gitsvc.Open(sf.docsDir, "docforge", "docforge@localhost")
		if err != nil {
			return err
		}
		opts = append(opts, lifecycle.WithGit(git))
	}
	engine := lifecycle.New(ws, repo, opts...)

	var notifier *webhook.Notifier
	if *webhookURL != "" {
		notifier = webhook.New(*webhookURL, envOr("DOCFORGE_WEBHOOK_SECRET", ""), nil)
	}

	h := &handlers.Handler{
		Repo:     repo,
		Engine:   engine,
		QA:       qa.New(repo, qa.Options{AssetsDir: *assetsDir}),
		Exports:  export.New(repo),
		Notifier: notifier,
	}
	auth := server.NewAuth(
		envOr("DOCFORGE_ADMIN_PASSWORD_HASH", ""),
		envOr("DOCFORGE_JWT_SECRET", ""),
		0,
	)
	if !auth.Enabled() {
		slog.Warn("Authentication disabled; set DOCFORGE_ADMIN_PASSWORD_HASH to protect mutations")
	}

	if *watch {
		if sf.sqlite != "" {
			return fmt.Errorf("-watch requires the directory backend")
		}
		stopWatch, err := watchDocs(ctx, sf.docsDir, repo)
		if err != nil {
			return err
		}
		defer stopWatch()
	}

	httpServer := &http.Server{
		Addr:        *httpAddr,
		Handler:     server.NewRouter(h, auth),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", *httpAddr, "public", *publicExport)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.Info("Server stopped")
	}
	return nil
}

func cmdCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	var sf storageFlags
	sf.register(fs)
	assetsDir := fs.String("assets-dir", "", "Public assets directory for asset link checks")
	glossary := fs.String("glossary", "", "Comma-separated canonically-cased glossary terms")
	externalLinks := fs.Bool("external-links", false, "Check external link liveness (network-bound)")
	claims := fs.String("claims-policy", "official", "Claims-need-sources policy (off, official, all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unknown arguments: %v", fs.Args())
	}
	setupLogger(sf.logLevel)

	ws, closeWS, err := sf.open()
	if err != nil {
		return err
	}
	defer closeWS()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := repository.New(ws, false)
	o := qa.Options{
		AssetsDir:          *assetsDir,
		CheckExternalLinks: *externalLinks,
		ClaimsPolicy:       qa.ClaimsPolicy(*claims),
	}
	if *glossary != "" {
		for _, t := range strings.Split(*glossary, ",") {
			if t = strings.TrimSpace(t); t != "" {
				o.Glossary = append(o.Glossary, t)
			}
		}
	}
	res, err := qa.New(repo, o).Run(ctx)
	if err != nil {
		return err
	}
	if res.OK {
		fmt.Println("ok")
		return nil
	}
	for _, f := range res.Findings {
		if f.File != "" {
			fmt.Printf("%s: %s (%s)\n", f.Code, f.Message, f.File)
		} else {
			fmt.Printf("%s: %s\n", f.Code, f.Message)
		}
	}
	return fmt.Errorf("%d finding(s)", len(res.Findings))
}

func cmdExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	var sf storageFlags
	sf.register(fs)
	outDir := fs.String("out", "./export", "Output directory for artifacts and schemas")
	publicExport := fs.Bool("public", false, "Public-export mode: only official, public docs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unknown arguments: %v", fs.Args())
	}
	setupLogger(sf.logLevel)

	ws, closeWS, err := sf.open()
	if err != nil {
		return err
	}
	defer closeWS()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := repository.New(ws, *publicExport)
	if err := repo.Load(ctx); err != nil {
		return err
	}
	if err := export.New(repo).WriteAll(ctx, *outDir); err != nil {
		return err
	}
	slog.Info("Export written", "dir", *outDir)
	return nil
}

// watchDocs invalidates the repository when anything in dir changes on disk.
// Development convenience only; the lifecycle engine's explicit invalidation
// is the correctness path.
func watchDocs(ctx context.Context, dir string, repo *repository.Repository) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to start watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				slog.Debug("Docs changed on disk", "op", ev.Op.String(), "name", ev.Name)
				repo.Invalidate()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Watcher error", "err", err)
			}
		}
	}()
	return func() { _ = watcher.Close() }, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func setupLogger(level string) {
	ll := &slog.LevelVar{}
	switch level {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		ll.Set(slog.LevelInfo)
	}
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			// Zero-value attrs are noise.
			val := a.Value.Any()
			skip := false
			switch t := val.(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case uint64:
				skip = t == 0
			case int64:
				skip = t == 0
			case float64:
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
	slog.SetDefault(logger)
}
