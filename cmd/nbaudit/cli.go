package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/nbaudit/internal/config"
	"github.com/hpungsan/nbaudit/internal/errors"
	"github.com/hpungsan/nbaudit/internal/issue"
	"github.com/hpungsan/nbaudit/internal/ops"
	"github.com/hpungsan/nbaudit/internal/report"
	"github.com/hpungsan/nbaudit/internal/web"
)

// engineFlags are the global flags that override the loaded config.
type engineFlags struct {
	strategy string
	logLevel string
}

func flagsFrom(c *cli.Context) engineFlags {
	return engineFlags{
		strategy: c.String("strategy"),
		logLevel: c.String("log-level"),
	}
}

// newCLIApp creates the CLI application with all commands. Config files
// are read from globalDir and from the .nbaudit directory nearest to the
// notebook.
func newCLIApp(globalDir string) *cli.App {
	app := &cli.App{
		Name:    "nbaudit",
		Usage:   "Accessibility auditor for Jupyter notebooks",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "strategy", Usage: "Contrast strategy: ocr|palette (overrides config)"},
			&cli.StringFlag{Name: "log-level", Usage: "Log level: debug|info|warn|error (overrides config)"},
		},
		Commands: []*cli.Command{
			checkCmd(globalDir),
			watchCmd(globalDir),
			addHeadingCmd(globalDir),
			contrastCmd(),
			purgeCacheCmd(globalDir),
			serveCmd(globalDir),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// checkCmd creates the check command.
func checkCmd(globalDir string) *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Audit a notebook once and print the report",
		ArgsUsage: "<notebook.ipynb>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: report.FormatJSON, Usage: "Output format: json|markdown|html"},
			&cli.BoolFlag{Name: "fail-on-issues", Usage: "Exit with status 1 when any issue is found"},
		},
		Action: func(c *cli.Context) error {
			path, err := notebookArg(c)
			if err != nil {
				return outputError(err)
			}
			format := c.String("format")
			switch format {
			case report.FormatJSON, report.FormatMarkdown, report.FormatHTML:
			default:
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("unknown format %q (json, markdown, html)", format)))
			}

			e, err := openEngine(c, globalDir, notebookDir(path))
			if err != nil {
				return outputError(err)
			}
			defer e.Close()

			r, err := ops.Check(c.Context, e, ops.CheckInput{Path: path})
			if err != nil {
				return outputError(err)
			}
			if err := report.Write(c.App.Writer, r, format); err != nil {
				return outputError(err)
			}
			if c.Bool("fail-on-issues") && !r.Clean() {
				return cli.Exit(fmt.Sprintf("%d accessibility %s found", r.Summary.Total, plural(r.Summary.Total, "issue", "issues")), 1)
			}
			return nil
		},
	}
}

// watchCmd creates the watch command.
func watchCmd(globalDir string) *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Audit a notebook and re-audit it whenever the file changes",
		ArgsUsage: "<notebook.ipynb>",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "interval", Usage: "Polling interval (default from config watch_interval_ms)"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "text", Usage: "Output format: text|json (one line per cell change)"},
		},
		Action: func(c *cli.Context) error {
			path, err := notebookArg(c)
			if err != nil {
				return outputError(err)
			}
			format := c.String("format")
			if format != "text" && format != report.FormatJSON {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("unknown format %q (text, json)", format)))
			}

			e, err := openEngine(c, globalDir, notebookDir(path))
			if err != nil {
				return outputError(err)
			}
			defer e.Close()

			interval := c.Duration("interval")
			if interval <= 0 {
				interval = time.Duration(e.Config().WatchIntervalMillis) * time.Millisecond
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			obs := &changePrinter{w: c.App.Writer, json: format == report.FormatJSON}
			err = ops.Watch(ctx, e, ops.WatchInput{Path: path, Interval: interval}, obs)
			if err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// addHeadingCmd creates the add-heading command.
func addHeadingCmd(globalDir string) *cli.Command {
	return &cli.Command{
		Name:      "add-heading",
		Usage:     "Insert a top-level heading cell at the start of a notebook and save it",
		ArgsUsage: "<notebook.ipynb>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Required: true, Usage: "Heading text"},
		},
		Action: func(c *cli.Context) error {
			path, err := notebookArg(c)
			if err != nil {
				return outputError(err)
			}

			e, err := openEngine(c, globalDir, notebookDir(path))
			if err != nil {
				return outputError(err)
			}
			defer e.Close()

			output, err := ops.InsertHeading(c.Context, e, ops.InsertHeadingInput{
				Path: path,
				Text: c.String("text"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// contrastCmd creates the contrast command.
func contrastCmd() *cli.Command {
	return &cli.Command{
		Name:      "contrast",
		Usage:     "Compute the WCAG contrast ratio of two colors",
		ArgsUsage: "<foreground> <background>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return outputError(errors.NewInvalidRequest("expected two colors: <foreground> <background>"))
			}

			output, err := ops.Contrast(ops.ContrastInput{
				Foreground: c.Args().Get(0),
				Background: c.Args().Get(1),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// purgeCacheCmd creates the purge-cache command.
func purgeCacheCmd(globalDir string) *cli.Command {
	return &cli.Command{
		Name:  "purge-cache",
		Usage: "Delete cached image measurements",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Only purge measurements older than N days (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeInput{}
			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = days
			}

			cwd, err := os.Getwd()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			e, err := openEngine(c, globalDir, cwd)
			if err != nil {
				return outputError(err)
			}
			defer e.Close()

			output, err := ops.Purge(c.Context, e.Cache(), input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(globalDir string) *cli.Command {
	return &cli.Command{
		Name:      "serve",
		Usage:     "Serve a live accessibility report for a notebook",
		ArgsUsage: "<notebook.ipynb>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8765, Usage: "Port to listen on"},
			&cli.BoolFlag{Name: "disabled", Usage: "Start with auditing turned off"},
		},
		Action: func(c *cli.Context) error {
			path, err := notebookArg(c)
			if err != nil {
				return outputError(err)
			}

			cfg, logger, err := loadConfig(globalDir, notebookDir(path), flagsFrom(c), c.App.ErrWriter)
			if err != nil {
				return outputError(err)
			}
			e, err := ops.NewEngine(cfg, logger)
			if err != nil {
				return outputError(err)
			}
			defer e.Close()

			s, err := ops.OpenSession(e, path, ops.PathCheckRead)
			if err != nil {
				return outputError(err)
			}
			if !c.Bool("disabled") {
				if err := s.Controller().Enable(c.Context); err != nil {
					return outputError(err)
				}
			}

			srv, err := web.NewServer(s, logger, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return web.Run(srv, logger)
		},
	}
}

// changePrinter prints every change to a cell's findings.
type changePrinter struct {
	mu   sync.Mutex
	w    io.Writer
	json bool
}

// IssuesChanged implements issue.Observer.
func (p *changePrinter) IssuesChanged(cellID string, issues []issue.Issue) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		line, err := json.Marshal(map[string]any{"cell_id": cellID, "issues": nonNil(issues)})
		if err != nil {
			return
		}
		fmt.Fprintf(p.w, "%s\n", line)
		return
	}

	if len(issues) == 0 {
		fmt.Fprintf(p.w, "cell %s: no issues\n", cellID)
		return
	}
	fmt.Fprintf(p.w, "cell %s: %d %s\n", cellID, len(issues), plural(len(issues), "issue", "issues"))
	for _, i := range issues {
		fmt.Fprintf(p.w, "  [%s] %s", i.Severity(), i.Message())
		if i.Source != "" {
			fmt.Fprintf(p.w, " (%s)", report.ShortSource(i.Source))
		}
		fmt.Fprintln(p.w)
	}
}

// Helper functions

// loadConfig layers the config files and environment for startDir, applies
// the flag overrides, and builds the logger. Logs go to logOut.
func loadConfig(globalDir, startDir string, flags engineFlags, logOut io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadWithRepo(globalDir, startDir)
	if err != nil {
		return nil, nil, errors.NewInvalidRequest(fmt.Sprintf("load config: %v", err))
	}
	if flags.strategy != "" {
		cfg.ContrastStrategy = flags.strategy
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if logOut == nil {
		logOut = os.Stderr
	}
	logger, err := newLogger(logOut, cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openEngine loads the config for startDir and builds an engine from it.
func openEngine(c *cli.Context, globalDir, startDir string) (*ops.Engine, error) {
	cfg, logger, err := loadConfig(globalDir, startDir, flagsFrom(c), c.App.ErrWriter)
	if err != nil {
		return nil, err
	}
	return ops.NewEngine(cfg, logger)
}

// newLogger returns a text logger at the named level.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid log level %q (debug, info, warn, error)", level))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// notebookArg returns the single positional notebook path.
func notebookArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", errors.NewInvalidRequest("expected one notebook path")
	}
	return c.Args().First(), nil
}

// notebookDir returns the absolute directory of path, where repo config
// and .env lookups start.
func notebookDir(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Dir(path)
	}
	return filepath.Dir(abs)
}

// outputJSON marshals result to w as JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var aErr *errors.AuditError
	if stderrors.As(err, &aErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", aErr.Code, aErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func nonNil(issues []issue.Issue) []issue.Issue {
	if issues == nil {
		return []issue.Issue{}
	}
	return issues
}

var _ issue.Observer = (*changePrinter)(nil)
