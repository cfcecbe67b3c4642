package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tagfsd/tagfsd/internal/config"
)

func newInitCmd() *cobra.Command {
	var socket string

	cmd := &cobra.Command{
		Use:   "init <absolute-path>",
		Short: "Initialize a .tagfsd/ project directory for the given watched root",
		Long: `Init creates a .tagfsd/config.yaml under the given directory, pre-filled
with the watched root and socket path, and registers the project in
~/.tagfsd.conf so a later "tagfsd run --project-name <name> <path>" picks
up the recorded socket path and config file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			watchedRoot := args[0]
			if !filepath.IsAbs(watchedRoot) {
				return fmt.Errorf("path %q must be absolute", watchedRoot)
			}
			watchedRoot = filepath.Clean(watchedRoot)
			if info, err := os.Stat(watchedRoot); err != nil || !info.IsDir() {
				return fmt.Errorf("%q must be an existing directory", watchedRoot)
			}

			projectDir := filepath.Join(watchedRoot, config.ProjectDirName)
			if _, err := os.Stat(projectDir); err == nil {
				return fmt.Errorf("%s already exists; project is already initialized", projectDir)
			}
			if err := os.MkdirAll(projectDir, 0755); err != nil {
				return fmt.Errorf("create project directory: %w", err)
			}

			socketPath := socket
			if socketPath == "" {
				socketPath = filepath.Join("/tmp", filepath.Base(watchedRoot)+".sock")
			}

			cfg := &config.Config{
				WatchedRoot:     watchedRoot,
				SocketPath:      socketPath,
				ExcludePatterns: []string{"**/.git/**"},
				DebounceMillis:  config.DefaultDebounceMillis,
				Verbosity:       config.DefaultVerbosity,
			}

			configPath := filepath.Join(projectDir, config.ProjectConfigFile)
			if err := config.WriteConfig(cfg, configPath); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created %s\n", configPath)

			projectName := filepath.Base(watchedRoot)
			if err := config.RegisterProject(projectName, watchedRoot, socketPath, projectDir); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to register project in %s: %v\n", config.RegistryPath(), err)
			} else {
				fmt.Fprintf(out, "Registered project %q in %s\n", projectName, config.RegistryPath())
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintf(out, "  1. Run 'tagfsd run %s' to bootstrap and watch\n", watchedRoot)
			fmt.Fprintf(out, "  2. Or run 'tagfsd run --project-name %s <path>' from anywhere\n", projectName)

			return nil
		},
	}

	cmd.Flags().StringVar(&socket, "socket", "", "IPC socket path to record in the generated config (default: /tmp/<basename>.sock)")

	return cmd
}
