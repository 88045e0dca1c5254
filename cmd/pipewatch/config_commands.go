package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pipewatch/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the pipewatch configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newConfigInitCommand(ctx))
	cmd.AddCommand(newConfigShowCommand(ctx))
	return cmd
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if ctx.configFlag != nil {
				path = *ctx.configFlag
			}
			if path == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = defaultPath
			}
			if err := config.WriteSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", path)
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config file:   %s\n", ctx.configPath)
			fmt.Fprintf(out, "bind:          %s\n", cfg.Paths.Bind)
			fmt.Fprintf(out, "data dir:      %s\n", cfg.Paths.DataDir)
			fmt.Fprintf(out, "content dir:   %s\n", cfg.Paths.ContentDir)
			fmt.Fprintf(out, "log dir:       %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "upload limit:  %d MiB\n", cfg.Upload.MaxSizeMiB)
			fmt.Fprintf(out, "classifier:    %s %s\n", cfg.Classifier.Python, cfg.Classifier.Script)
			fmt.Fprintf(out, "class timeout: %s\n", cfg.ClassifierTimeout())
			fmt.Fprintf(out, "access ttl:    %s\n", cfg.AccessTTL())
			fmt.Fprintf(out, "refresh ttl:   %s\n", cfg.RefreshTTL())
			return nil
		},
	}
}
