package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/gops/agent"
	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"

	"github.com/tagfsd/tagfsd/internal/config"
	"github.com/tagfsd/tagfsd/internal/supervisor"
	"github.com/tagfsd/tagfsd/internal/tagadapter"
)

func newRunCmd() *cobra.Command {
	var (
		debug     bool
		socket    string
		register  bool
		verbosity string
	)

	cmd := &cobra.Command{
		Use:   "run <absolute-path>",
		Short: "Bootstrap the graph and watch the given directory",
		Long: `Run walks the given absolute directory, reads the user-defined tags
attached to each entry, builds the in-memory tag-entry graph, then watches
the tree for changes while serving tag queries over a local Unix domain
socket.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			watchedRoot := args[0]
			if !filepath.IsAbs(watchedRoot) {
				return fmt.Errorf("path %q must be absolute", watchedRoot)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.WatchedRoot = filepath.Clean(watchedRoot)
			if socket != "" {
				cfg.SocketPath = socket
			}
			if debug {
				cfg.Debug = true
			}
			if verbosity != "" {
				cfg.Verbosity = verbosity
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			log.SetOutput(os.Stderr)
			ll, err := log.ParseLevel(cfg.Verbosity)
			if err != nil {
				return fmt.Errorf("parse verbosity %q: %w", cfg.Verbosity, err)
			}
			log.SetLevel(ll)

			if cfg.Debug {
				if err := agent.Listen(agent.Options{}); err != nil {
					log.WithError(err).Warn("could not start gops agent")
				}
			}

			if register {
				if err := config.RegisterProject(projectName, cfg.WatchedRoot, cfg.ResolveSocketPath(socket), cfg.ConfigDir); err != nil {
					log.WithError(err).Warn("could not register project in registry")
				}
			}

			adapter := tagadapter.NewXattrAdapter()
			sup := supervisor.New(cfg, adapter, log.StandardLogger())

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigc := make(chan os.Signal, 1)
			signal.Notify(sigc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig, ok := <-sigc
				if !ok {
					return
				}
				log.WithField("signal", sig.String()).Info("shutting down")
				cancel()
			}()

			return sup.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "enable gops agent and periodic graph snapshot logging")
	cmd.Flags().StringVar(&socket, "socket", "", "IPC socket path (default: config value or "+config.DefaultSocketPath+")")
	cmd.Flags().BoolVar(&register, "register", false, "register this watched root under --project-name in the global registry")
	cmd.Flags().StringVar(&verbosity, "verbosity", "", "logrus level name (default: config value or "+config.DefaultVerbosity+")")

	return cmd
}
