package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/nbaudit/internal/mcp"
	"github.com/hpungsan/nbaudit/internal/ops"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"check": true, "watch": true, "add-heading": true,
	"contrast": true, "purge-cache": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false // No args → MCP server
	}
	arg := args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	// Global flags precede the subcommand
	for _, a := range args[1:] {
		if cliCommands[a] {
			return true
		}
	}
	return false
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
         _                   _ _ _
   _ __ | |__   __ _ _   _  __| (_) |_
  | '_ \| '_ \ / _' | | | |/ _' | | __|
  | | | | |_) | (_| | |_| | (_| | | |_
  |_| |_|_.__/ \__,_|\__,_|\__,_|_|\__|

  Accessibility auditor for Jupyter notebooks

  Usage: nbaudit <command> [options]
         nbaudit --help

  MCP server mode requires piped input.`)
}

// globalDir returns ~/.nbaudit, or "" when the home directory is unknown.
func globalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".nbaudit")
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	if isCLIMode(os.Args) {
		app := newCLIApp(globalDir())
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'nbaudit --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := runMCP(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runMCP() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("could not determine working directory: %w", err)
	}
	cfg, logger, err := loadConfig(globalDir(), cwd, engineFlags{}, os.Stderr)
	if err != nil {
		return err
	}
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("unknown tools in disabled_tools", "tools", unknown)
	}

	e, err := ops.NewEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer e.Close()

	return mcp.Run(e, Version)
}
