// Package cli implements the command-line interface for tagfsd.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	projectName string
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "tagfsd",
	Short: "tagfsd - a local-filesystem tag-indexing daemon",
	Long: `tagfsd watches a directory, reads user-defined tags from each entry's
extended attributes, maintains an in-memory tag-entry graph, and serves
boolean tag queries over a local Unix domain socket.

Commands:
  run        Bootstrap the graph and watch the given directory
  init       Scaffold a .tagfsd/config.yaml for a watched root
  version    Print version information`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .tagfsd/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&projectName, "project-name", "p", "", "project name (looks up in ~/.tagfsd.conf registry)")

	bindFlag := func(key, flag string) {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("failed to bind %s flag: %v", flag, err))
		}
	}
	bindFlag("config_file", "config")
	bindFlag("project_name", "project-name")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig points the global viper at the --config file if one is given;
// config.Load does the reading.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}
