package main

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"cinemarathon/internal/logging"
)

func newRootCommand(fsys afero.Fs) *cobra.Command {
	var configFlag string
	var dataDirFlag string
	var storageFlag string
	var verbose bool

	ctx := newCommandContext(fsys, &configFlag, &dataDirFlag, &storageFlag)

	rootCmd := &cobra.Command{
		Use:           "marathon",
		Short:         "Plan movie marathons from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if verbose {
				level = "debug"
			}
			logging.Configure(logging.Config{Level: level, Console: true, Output: cmd.ErrOrStderr(), Service: "marathon-cli"})
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Override the data directory")
	rootCmd.PersistentFlags().StringVar(&storageFlag, "storage", "", "Saved marathon storage: local or remote")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(newSearchCommand(ctx))
	rootCmd.AddCommand(newDiscoverCommand(ctx))
	rootCmd.AddCommand(newPopularCommand(ctx))
	rootCmd.AddCommand(newGenresCommand(ctx))
	rootCmd.AddCommand(newPersonCommand(ctx))

	rootCmd.AddCommand(newAddCommand(ctx))
	rootCmd.AddCommand(newRemoveCommand(ctx))
	rootCmd.AddCommand(newShowCommand(ctx))
	rootCmd.AddCommand(newClearCommand(ctx))

	rootCmd.AddCommand(newSaveCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newLoadCommand(ctx))
	rootCmd.AddCommand(newDeleteCommand(ctx))
	rootCmd.AddCommand(newRenameCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))

	rootCmd.AddCommand(newRegisterCommand(ctx))
	rootCmd.AddCommand(newLoginCommand(ctx))
	rootCmd.AddCommand(newLogoutCommand(ctx))

	return rootCmd
}
