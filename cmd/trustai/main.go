// trustai is a terminal client for the TrustAI backend: log in, list and
// create projects, run analyses (logged in or as a guest) and export
// reports.
//
// Usage:
//
//	trustai [--config path] [--backend url] <command> [flags] [args]
//
// Commands: login, logout, whoami, projects, project, analyze, guest, export.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bryanwahyu/trustai-client/internal/application"
	appanalysis "github.com/bryanwahyu/trustai-client/internal/application/analysis"
	appauth "github.com/bryanwahyu/trustai-client/internal/application/auth"
	appprojects "github.com/bryanwahyu/trustai-client/internal/application/projects"
	appreports "github.com/bryanwahyu/trustai-client/internal/application/reports"
	"github.com/bryanwahyu/trustai-client/internal/config"
	"github.com/bryanwahyu/trustai-client/internal/domain/auth"
	"github.com/bryanwahyu/trustai-client/internal/domain/projects"
	"github.com/bryanwahyu/trustai-client/internal/infra/api"
	"github.com/bryanwahyu/trustai-client/internal/infra/extract"
	"github.com/bryanwahyu/trustai-client/internal/infra/report"
	"github.com/bryanwahyu/trustai-client/internal/infra/storage"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

// app holds the services a command needs.
type app struct {
	cfg      *config.Config
	out      io.Writer
	auth     *appauth.Service
	store    *appprojects.Store
	detail   *appprojects.DetailService
	sessions *appanalysis.Manager
	reports  *appreports.Service
}

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":    {"log in with email and password", cmdLogin},
	"logout":   {"forget the stored session", cmdLogout},
	"whoami":   {"show the logged-in profile", cmdWhoami},
	"projects": {"list projects", cmdProjects},
	"project":  {"create or delete a project", cmdProject},
	"analyze":  {"analyze text or a file as the logged-in user", cmdAnalyze},
	"guest":    {"analyze text or a file with guest credits", cmdGuest},
	"export":   {"export a project report", cmdExport},
}

func run(args []string, stdout, stderr io.Writer) error {
	var configPath, backendURL, statePath string
	var verbose bool

	global := pflag.NewFlagSet("trustai", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.SetOutput(stderr)
	global.StringVar(&configPath, "config", envOr("CONFIG_PATH", "config.yaml"), "path to config.yaml")
	global.StringVar(&backendURL, "backend", "", "backend base URL (overrides config and TRUSTAI_BACKEND_URL)")
	global.StringVar(&statePath, "state", envOr("TRUSTAI_STATE", defaultStatePath()), "file keeping the login session")
	global.BoolVarP(&verbose, "verbose", "v", false, "log requests to stderr")
	global.Usage = func() { printUsage(stderr, global) }
	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	rest := global.Args()
	if len(rest) == 0 {
		printUsage(stderr, global)
		return errors.New("no command given")
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		printUsage(stderr, global)
		return fmt.Errorf("unknown command %q", rest[0])
	}

	cfg, err := config.LoadOptional(configPath, backendURL)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cfg, statePath, stdout, stderr, logger)
	if err != nil {
		return err
	}
	err = cmd.run(ctx, a, rest[1:])
	if api.IsUnauthorized(err) {
		// token sudah kadaluarsa, buang supaya command berikutnya minta login
		if lerr := a.auth.Logout(ctx); lerr != nil {
			logger.Warn("drop expired session", "err", lerr)
		}
		return fmt.Errorf("session expired, run `trustai login`: %w", err)
	}
	return err
}

func newApp(ctx context.Context, cfg *config.Config, statePath string, stdout, stderr io.Writer, logger *slog.Logger) (*app, error) {
	// CLI selalu pakai file untuk token, session cukup di memory
	local, err := storage.NewFile(statePath)
	if err != nil {
		return nil, fmt.Errorf("local storage: %w", err)
	}

	toasts := toastPrinter{w: stderr}
	authSvc := &appauth.Service{Local: local, Logger: logger}
	client := api.New(cfg.BackendURL(), cfg.Backend.Timeout, api.TokenFunc(authSvc.Token), logger)
	authSvc.Backend = client.Auth()
	if err := authSvc.Restore(ctx); err != nil {
		return nil, err
	}

	store := &appprojects.Store{Backend: client.Projects(), Session: authSvc, Notifier: toasts, Logger: logger}
	return &app{
		cfg:   cfg,
		out:   stdout,
		auth:  authSvc,
		store: store,
		detail: &appprojects.DetailService{
			Projects: client.Projects(),
			Files:    client.Files(),
			Messages: client.Messages(),
			Analyzer: client.AI(),
			Cache:    storage.NewMemory(0),
			Store:    store,
			Notifier: toasts,
			Logger:   logger,
			TTL:      cfg.Cache.DetailTTL,
		},
		sessions: appanalysis.NewManager(appanalysis.Deps{
			Analyzer:      client.AI(),
			GuestAnalyzer: client.AI(),
			Extractor:     extract.New(cfg.Extract.TesseractPath, cfg.Extract.Language, logger),
			Notifier:      toasts,
			Logger:        logger,
			TextLimit:     cfg.Guest.TextLimit,
		}),
		reports: &appreports.Service{Renderer: report.New(), Logger: logger},
	}, nil
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "trustai-local.json"
	}
	return filepath.Join(dir, "trustai", "local.json")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printUsage(w io.Writer, global *pflag.FlagSet) {
	fmt.Fprintln(w, "usage: trustai [flags] <command> [command flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, name := range []string{"login", "logout", "whoami", "projects", "project", "analyze", "guest", "export"} {
		fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "flags:")
	fmt.Fprint(w, global.FlagUsages())
}

func newFlags(name string) *pflag.FlagSet {
	return pflag.NewFlagSet("trustai "+name, pflag.ContinueOnError)
}

//
// ==== AUTH ====
//

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlags("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("TRUSTAI_PASSWORD"), "password (env TRUSTAI_PASSWORD)")
	google := fs.String("google-credential", "", "log in with a Google ID token instead")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		u   auth.User
		err error
	)
	if *google != "" {
		u, err = a.auth.GoogleLogin(ctx, *google)
	} else {
		u, err = a.auth.Login(ctx, auth.Credentials{Email: *email, Password: *password})
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s logged in as %s\n", successStyle.Render("✓"), u.Email)
	return nil
}

func cmdLogout(ctx context.Context, a *app, args []string) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "logged out")
	return nil
}

func cmdWhoami(ctx context.Context, a *app, args []string) error {
	p, err := a.auth.Refresh(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s <%s>\n", titleStyle.Render(p.FullName()), p.Email)
	if p.Bio != "" {
		fmt.Fprintln(a.out, dimStyle.Render(p.Bio))
	}
	return nil
}

//
// ==== PROJECTS ====
//

func cmdProjects(ctx context.Context, a *app, args []string) error {
	if err := requireLogin(a); err != nil {
		return err
	}
	if err := a.store.FetchProjects(ctx, true); err != nil {
		return err
	}
	list := a.store.Projects()
	if len(list) == 0 {
		fmt.Fprintln(a.out, dimStyle.Render("no projects yet"))
		return nil
	}
	for _, p := range list {
		fmt.Fprintln(a.out, projectLine(p))
	}
	return nil
}

func cmdProject(ctx context.Context, a *app, args []string) error {
	if err := requireLogin(a); err != nil {
		return err
	}
	if len(args) == 0 {
		return errors.New("usage: trustai project create NAME | delete ID")
	}
	switch args[0] {
	case "create":
		fs := newFlags("project create")
		category := fs.String("category", "General", "project category")
		description := fs.String("description", "", "project description")
		tags := fs.StringSlice("tag", nil, "tag (repeatable)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		p, err := a.store.AddProject(ctx, projects.ProjectDraft{
			Name:        strings.Join(fs.Args(), " "),
			Description: *description,
			Category:    *category,
			Tags:        *tags,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, projectLine(p))
		return nil
	case "delete":
		if len(args) != 2 {
			return errors.New("usage: trustai project delete ID")
		}
		return a.store.DeleteProject(ctx, projects.ProjectID(args[1]))
	}
	return fmt.Errorf("unknown project action %q", args[0])
}

func cmdExport(ctx context.Context, a *app, args []string) error {
	if err := requireLogin(a); err != nil {
		return err
	}
	fs := newFlags("export")
	format := fs.StringP("format", "f", "pdf", "pdf, json, md or html")
	out := fs.StringP("out", "o", ".", "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: trustai export [--format pdf] PROJECT_ID")
	}
	d, err := a.detail.Load(ctx, projects.ProjectID(fs.Arg(0)))
	if err != nil {
		return err
	}
	exp, err := a.reports.Project(ctx, d.Project, *format)
	if err != nil {
		return err
	}
	return writeExport(a, *out, exp)
}

//
// ==== ANALYSIS ====
//

func cmdAnalyze(ctx context.Context, a *app, args []string) error {
	if err := requireLogin(a); err != nil {
		return err
	}
	fs := newFlags("analyze")
	projectID := fs.StringP("project", "p", "", "analyze inside this project and keep the conversation there")
	file := fs.String("file", "", "extract text from a pdf, image or text file")
	save := fs.String("save", "", "save the result into this project id")
	saveNew := fs.String("save-new", "", "save the result into a new project with this name")
	format := fs.String("report", "", "also export the analysis as pdf, json, md or html")
	out := fs.StringP("out", "o", ".", "report output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *projectID != "" {
		text, err := inputText(ctx, a, nil, *file, fs.Args())
		if err != nil {
			return err
		}
		_, res, err := a.detail.Analyze(ctx, projects.ProjectID(*projectID), text)
		if err != nil {
			return err
		}
		printVerdict(a.out, res.Score, res.Status(), res.AnalysisMarkdown)
		return nil
	}

	s := a.sessions.Create(false)
	text, err := inputText(ctx, a, s, *file, fs.Args())
	if err != nil {
		return err
	}
	if err := submit(ctx, a, s, text); err != nil {
		return err
	}
	if *save != "" || *saveNew != "" {
		res, err := s.LastAnalysis()
		if err != nil {
			return err
		}
		p, err := a.store.SaveAnalysis(ctx, appprojects.SaveTarget{ProjectID: projects.ProjectID(*save), NewProjectName: *saveNew}, res)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s saved to %s\n", successStyle.Render("✓"), p.Name)
	}
	return exportSession(ctx, a, s, *format, *out)
}

func cmdGuest(ctx context.Context, a *app, args []string) error {
	fs := newFlags("guest")
	file := fs.String("file", "", "extract text from a pdf, image or text file")
	format := fs.String("report", "", "also export the analysis as pdf, json, md or html")
	out := fs.StringP("out", "o", ".", "report output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s := a.sessions.Create(true)
	credits := s.RefreshCredits(ctx)
	if credits <= 0 {
		return errors.New("no guest credits left today, log in for unlimited analyses")
	}
	text, err := inputText(ctx, a, s, *file, fs.Args())
	if err != nil {
		return err
	}
	if err := submit(ctx, a, s, text); err != nil {
		return err
	}
	fmt.Fprintln(a.out, dimStyle.Render(fmt.Sprintf("%d guest credits left", s.Credits())))
	return exportSession(ctx, a, s, *format, *out)
}

// inputText joins args, or reads stdin when args is "-", and prefixes the
// extracted file text when file is set.
func inputText(ctx context.Context, a *app, s *appanalysis.Session, file string, args []string) (string, error) {
	text := strings.Join(args, " ")
	if text == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		text = string(b)
	}
	if file == "" {
		return text, nil
	}
	var extracted string
	if s != nil {
		var err error
		if extracted, err = s.AttachFile(ctx, file, filepath.Base(file)); err != nil {
			return "", err
		}
	} else {
		raw, err := extract.New(a.cfg.Extract.TesseractPath, a.cfg.Extract.Language, nil).Extract(ctx, file)
		if err != nil {
			return "", err
		}
		extracted = appanalysis.PrefixExtracted(filepath.Base(file), raw)
	}
	if strings.TrimSpace(text) == "" {
		return extracted, nil
	}
	return extracted + "\n\n" + text, nil
}

func submit(ctx context.Context, a *app, s *appanalysis.Session, text string) error {
	msg, err := s.Submit(ctx, text)
	if err != nil && !msg.Failed {
		return err
	}
	if msg.Failed {
		fmt.Fprintln(a.out, errorStyle.Render(msg.Content))
		return err
	}
	printVerdict(a.out, *msg.TrustScore, msg.Status, msg.Content)
	return nil
}

func exportSession(ctx context.Context, a *app, s *appanalysis.Session, format, dir string) error {
	if format == "" {
		return nil
	}
	res, err := s.LastAnalysis()
	if err != nil {
		return err
	}
	exp, err := a.reports.Analysis(ctx, "sessions/"+s.ID, res, format)
	if err != nil {
		return err
	}
	return writeExport(a, dir, exp)
}

func writeExport(a *app, dir string, exp appreports.Export) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, exp.Filename())
	if err := os.WriteFile(path, exp.Data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s wrote %s\n", successStyle.Render("✓"), path)
	return nil
}

func requireLogin(a *app) error {
	if !a.auth.HasToken() {
		return fmt.Errorf("%w: run `trustai login` first", auth.ErrNotAuthenticated)
	}
	return nil
}

// toastPrinter shows service notifications on stderr.
type toastPrinter struct{ w io.Writer }

func (p toastPrinter) Notify(t application.Toast) {
	style := dimStyle
	switch t.Level {
	case application.LevelError:
		style = errorStyle
	case application.LevelSuccess:
		style = successStyle
	}
	line := t.Title
	if t.Message != "" {
		line += ": " + t.Message
	}
	fmt.Fprintln(p.w, style.Render(line))
}
