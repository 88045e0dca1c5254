package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var serverFlag string
	var configFlag string

	ctx := newCommandContext(&serverFlag, &configFlag)

	rootCmd := &cobra.Command{
		Use:           "pipewatch",
		Short:         "Pipewatch acoustic monitoring CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Base URL of the pipewatch server")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newInitCommand(ctx))
	rootCmd.AddCommand(newLoginCommand(ctx))
	rootCmd.AddCommand(newLogoutCommand(ctx))
	rootCmd.AddCommand(newRegisterCommand(ctx))
	rootCmd.AddCommand(newWhoamiCommand(ctx))
	rootCmd.AddCommand(newPasswdCommand(ctx))
	rootCmd.AddCommand(newUsersCommand(ctx))
	rootCmd.AddCommand(newFilesCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
