// Package cli implements the helix command-line interface.
//
// Commands are built with Cobra around an [App] that holds every dependency
// a command needs. Tests construct an App with mocks; [RunWithConfig] and
// [Execute] wire the real implementations from configuration.
//
// Exit codes:
//   - 0: the operation succeeded and the notice was committed
//   - 1: the operation could not start (usage, routing, transport, rejection)
//   - 2: the server accepted the request but not every matter succeeded
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"helixhub/internal/config"
	"helixhub/internal/lifecycle"
	"helixhub/internal/logging"
	"helixhub/internal/manifest"
	"helixhub/internal/output"
	"helixhub/internal/router"
	"helixhub/internal/status"
	"helixhub/internal/workflow"
)

// NoticeReader reads the notice store for commands.
type NoticeReader interface {
	lifecycle.NoticeReader
	ListClients() ([]string, error)
}

// App holds the dependencies shared by all commands.
//
// Nil fields are wired from configuration before the first command runs.
type App struct {
	Config       *config.Config
	NoticeReader NoticeReader
	NoticeWriter lifecycle.NoticeWriter
	Runner       lifecycle.StreamRunner
	Router       *router.Router
	Printer      *output.Printer
	Logger       *slog.Logger

	// configPath is bound to the --config flag.
	configPath string

	exec *lifecycle.Executor
}

// ExecuteResult is the outcome of running the root command.
type ExecuteResult struct {
	ExitCode int
	Err      error
}

// NewRootCommand builds the command tree for app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "helix",
		Short: "Record rate-change notices against practice-management matters",
		Long: `helix drives rate-change notice updates for a client's matters.

Each operation streams per-matter progress from the server and commits the
client's new notice status locally only when every matter succeeded.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.wire()
		},
	}

	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (default: discovered)")

	rootCmd.AddCommand(
		newOperationCommand(app, router.OpMarkSent, "Mark a client's rate-change notice as sent"),
		newOperationCommand(app, router.OpMarkNA, "Mark a client's rate-change notice as not applicable"),
		newOperationCommand(app, router.OpUndo, "Revert a sent or not-applicable notice to pending"),
		newCCLDateCommand(app),
		newStatusCommand(app),
	)

	return rootCmd
}

// wire fills every nil dependency from configuration.
func (app *App) wire() error {
	if app.Config == nil {
		loader := config.NewLoader()
		var (
			cfg *config.Config
			err error
		)
		if app.configPath != "" {
			cfg, err = loader.LoadFromFile(app.configPath)
		} else {
			cfg, err = loader.Load()
		}
		if err != nil {
			return err
		}
		app.Config = cfg
	}
	cfg := app.Config

	if app.Logger == nil {
		logger, err := logging.Configure(os.Stderr, cfg.Logging.Level)
		if err != nil {
			return err
		}
		app.Logger = logger
	}

	if app.NoticeReader == nil {
		app.NoticeReader = status.NewReaderWithPath(".", cfg.Notices.Path)
	}
	if app.NoticeWriter == nil {
		app.NoticeWriter = status.NewWriterWithPath(".", cfg.Notices.Path)
	}

	if app.Router == nil && cfg.Transitions.ManifestPath != "" {
		m, err := manifest.ReadFromFile(cfg.Transitions.ManifestPath)
		if err != nil {
			return err
		}
		r, err := router.NewRouterFromManifest(m)
		if err != nil {
			return err
		}
		app.Router = r
	}

	if app.Runner == nil {
		opts := []workflow.Option{
			workflow.WithHTTPClient(workflow.NewHTTPClient(cfg.API.ResponseHeaderTimeout)),
			workflow.WithIdleTimeout(cfg.API.IdleTimeout),
			workflow.WithLogger(app.Logger),
		}
		if cfg.API.Token != "" {
			opts = append(opts, workflow.WithHeader("Authorization", "Bearer "+cfg.API.Token))
		}
		app.Runner = workflow.NewRunner(opts...)
	}

	if app.Printer == nil {
		app.Printer = output.NewPrinter()
		app.Printer.SetColor(cfg.Output.Color)
		app.Printer.SetTruncateLength(cfg.Output.TruncateLength)
	}

	return nil
}

// executor returns the App's single executor so its per-client guard spans
// every command run through this App.
func (app *App) executor() *lifecycle.Executor {
	if app.exec != nil {
		return app.exec
	}
	exec := lifecycle.NewExecutor(app.Runner, app.NoticeReader, app.NoticeWriter, app.Config, lifecycle.Identity{
		Email:    app.Config.Identity.Email,
		Initials: app.Config.Identity.Initials,
	})
	exec.SetRouter(app.Router)
	if app.Logger != nil {
		exec.SetLogger(app.Logger)
	}
	app.exec = exec
	return exec
}

// RunWithConfig runs the root command against os.Args. A nil cfg is loaded
// from the environment and config files.
func RunWithConfig(cfg *config.Config) ExecuteResult {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &App{Config: cfg}
	rootCmd := NewRootCommand(app)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if code, ok := IsExitError(err); ok {
			return ExecuteResult{ExitCode: code, Err: err}
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return ExecuteResult{ExitCode: 1, Err: err}
	}
	return ExecuteResult{ExitCode: 0}
}

// Execute runs the CLI and exits the process with its exit code.
func Execute() {
	result := RunWithConfig(nil)
	if result.ExitCode != 0 {
		os.Exit(result.ExitCode)
	}
}
