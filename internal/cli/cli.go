// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/jeranaias/retrochat/internal/chat"
	"github.com/jeranaias/retrochat/internal/commands"
	"github.com/jeranaias/retrochat/internal/config"
	"github.com/jeranaias/retrochat/internal/logging"
	"github.com/jeranaias/retrochat/internal/model"
	"github.com/jeranaias/retrochat/internal/provider"
	"github.com/jeranaias/retrochat/internal/storage"
	"github.com/jeranaias/retrochat/internal/stream"
	"github.com/jeranaias/retrochat/internal/ui/render"
)

// =============================================================================
// APPLICATION
// =============================================================================

// App holds the state shared by every subcommand: global flags, the loaded
// configuration and the logger.
type App struct {
	Version string

	In  io.Reader
	Out io.Writer
	Err io.Writer

	// OpenTransport overrides provider.Open.
	OpenTransport commands.OpenFunc

	// Clipboard overrides the system clipboard for /copy.
	Clipboard commands.Clipboard

	// Global flags
	configPath string
	provider   string
	model      string
	session    string
	think      string
	logFile    string
	verbose    bool
	quiet      bool
	noColor    bool

	cfg     *config.Config
	cfgPath string
	logger  *log.Logger
	store   *storage.Store
	closers []io.Closer
}

// NewApp returns an App wired to the process's standard streams.
func NewApp(version string) *App {
	return &App{
		Version: version,
		In:      os.Stdin,
		Out:     os.Stdout,
		Err:     os.Stderr,
	}
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(version string, args []string) int {
	app := NewApp(version)
	root := app.Command()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		DisplayError(app.Err, err)
		return ExitCode(err)
	}
	return ExitSuccess
}

// Command builds the root command. With no subcommand it starts the
// interactive chat.
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "retrochat",
		Short: "Terminal chat client for OpenAI-compatible model servers",
		Long: `retrochat is a terminal chat client for LM Studio, OpenRouter, Ollama and
other OpenAI-compatible endpoints.

Replies stream as they arrive. Fenced code blocks in a reply are tagged with
a [CodeID: N] that stays stable for the session, so /copy N always copies
the same block. Conversations are saved and resumed automatically.

Quick Start:
  retrochat                          # chat, resuming the last session
  retrochat ask "explain defer"      # one-shot question
  retrochat sessions list            # saved conversations
  retrochat config init              # write a starter config file`,
		Version:       a.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipSetup(cmd) {
				return nil
			}
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChat(cmd.Context())
		},
	}
	root.SetIn(a.In)
	root.SetOut(a.Out)
	root.SetErr(a.Err)
	root.SetVersionTemplate("retrochat {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (default: "+defaultConfigHint()+")")
	flags.StringVarP(&a.provider, "provider", "p", "", "provider to use for this run")
	flags.StringVarP(&a.model, "model", "m", "", "model name for this run")
	flags.StringVarP(&a.session, "session", "s", "", "session ID to open")
	flags.StringVar(&a.think, "think", "", "show or hide <think> sections (show|hide)")
	flags.StringVar(&a.logFile, "log-file", "", "write logs to this file in logfmt")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "only log errors")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		a.chatCommand(),
		a.askCommand(),
		a.sessionsCommand(),
		a.configCommand(),
		a.versionCommand(),
	)
	return root
}

// skipSetup reports whether cmd runs without loading the configuration.
func skipSetup(cmd *cobra.Command) bool {
	return cmd.Annotations["setup"] == "skip"
}

func defaultConfigHint() string {
	if p, err := config.DefaultPath(); err == nil {
		return p
	}
	return "retrochat/config.toml in the user config directory"
}

// =============================================================================
// SETUP
// =============================================================================

// setup loads the configuration, applies flag overrides and builds the
// logger.
func (a *App) setup() error {
	logger, closer, err := logging.Setup(logging.Options{
		Verbose: a.verbose,
		Quiet:   a.quiet,
		File:    a.logFile,
		Output:  a.Err,
	})
	if err != nil {
		return err
	}
	a.logger = logger
	a.closers = append(a.closers, closer)

	path, err := a.resolveConfigPath()
	if err != nil {
		return err
	}
	a.cfgPath = path

	cfg, err := config.Load(path, config.WithLogger(a.logger))
	if err != nil {
		return err
	}
	if err := a.applyOverrides(cfg); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger.Debug("config loaded", "path", path, "provider", cfg.ActiveProvider)
	return nil
}

func (a *App) resolveConfigPath() (string, error) {
	if a.configPath != "" {
		return filepath.Abs(a.configPath)
	}
	return config.DefaultPath()
}

// applyOverrides applies the --provider, --model and --think flags.
func (a *App) applyOverrides(cfg *config.Config) error {
	if a.provider != "" {
		if err := cfg.SelectProvider(a.provider); err != nil {
			return usageErrorf("--provider: %v", err)
		}
	}
	if a.model != "" {
		cfg.Params.Model = a.model
	}
	if a.think != "" {
		mode, err := stream.ParseMode(a.think)
		if err != nil {
			return usageErrorf("--think: %v", err)
		}
		cfg.Display.Think = mode.String()
	}
	return nil
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			logging.OrDiscard(a.logger).Debug("close failed", "err", err)
		}
	}
	a.closers = nil
}

// =============================================================================
// SERVICE CONSTRUCTION
// =============================================================================

// openTransport builds the transport for the active provider.
func (a *App) openTransport(cfg *config.Config) (model.Transport, error) {
	name, p, err := cfg.Active()
	if err != nil {
		return nil, err
	}
	if a.OpenTransport != nil {
		return a.OpenTransport(name, p)
	}
	return provider.Open(name, p, a.logger)
}

func (a *App) openFunc() commands.OpenFunc {
	if a.OpenTransport != nil {
		return a.OpenTransport
	}
	return func(name string, p config.ProviderConfig) (model.Transport, error) {
		return provider.Open(name, p, a.logger)
	}
}

// openService opens the session store, the search index when enabled and,
// if withTransport is set, the active provider.
func (a *App) openService(withTransport bool) (*chat.Service, error) {
	cfg := a.cfg

	dir, err := cfg.SessionsDir()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewStore(dir,
		storage.WithLogger(a.logger),
		storage.WithLastSessionPath(filepath.Join(filepath.Dir(a.cfgPath), storage.LastSessionFile)),
	)
	if err != nil {
		return nil, err
	}
	a.store = store

	var index *storage.Index
	if cfg.Storage.SearchIndex {
		index, err = a.openIndex(store)
		if err != nil {
			a.logger.Warn("search index unavailable", "err", err)
		}
	}

	var transport model.Transport
	if withTransport {
		transport, err = a.openTransport(cfg)
		if err != nil {
			return nil, err
		}
	}

	mode, err := stream.ParseMode(cfg.Display.Think)
	if err != nil {
		mode = stream.ModeHide
	}
	return chat.New(chat.Options{
		Store:       store,
		Index:       index,
		Transport:   transport,
		Params:      cfg.Params,
		ThinkMode:   mode,
		TrimLeading: cfg.Display.TrimLeading,
		Logger:      a.logger,
	})
}

// openIndex opens the search index, building it on first use.
func (a *App) openIndex(store *storage.Store) (*storage.Index, error) {
	path, err := a.cfg.IndexPath()
	if err != nil {
		return nil, err
	}
	_, statErr := os.Stat(path)
	index, err := storage.OpenIndex(path, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, index)

	if errors.Is(statErr, os.ErrNotExist) {
		n, err := index.Rebuild(context.Background(), store)
		if err != nil {
			a.logger.Warn("initial index build failed", "err", err)
		} else {
			a.logger.Debug("search index built", "sessions", n)
		}
	}
	return index, nil
}

// newRenderer builds a renderer for a.Out honoring --no-color and the
// display settings.
func (a *App) newRenderer() (*render.Renderer, error) {
	width, _ := terminalSize(a.Out)
	return render.New(a.Out, render.Options{
		Theme:     a.cfg.Display.Theme,
		NoColor:   a.noColor || !colorsEnabled(a.Out),
		Markdown:  a.cfg.Display.Markdown,
		Highlight: a.cfg.Display.Highlight,
		Width:     width,
	})
}

// openSession selects the session named by --session, or resumes the last
// one.
func (a *App) openSession(svc *chat.Service) error {
	if a.session != "" {
		_, err := svc.LoadSession(a.session)
		return err
	}
	_, err := svc.Resume()
	return err
}
