package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init <username> <password>",
		Short: "Create the bootstrap admin on an uninitialized server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			initialized, err := c.InitStatus(cmd.Context())
			if err != nil {
				return err
			}
			if initialized {
				return fmt.Errorf("server is already initialized")
			}
			if err := c.InitAdmin(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bootstrap admin %q created\n", args[0])
			return nil
		},
	}
}

func newRegisterCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "register <username> <password>",
		Short: "Create a new user account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			if err := c.Register(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %q registered\n", args[0])
			return nil
		},
	}
}

func newLoginCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "login <username> <password>",
		Short: "Authenticate and save a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			if err := c.Login(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %q\n", args[0])
			return nil
		},
	}
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			if err := c.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the currently authenticated user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			user, err := c.Profile(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (id %d, created %s)\n", user.Username, user.ID, user.CreatedAt)
			return nil
		},
	}
}

func newPasswdCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd <old-password> <new-password>",
		Short: "Change the current user's password",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			if err := c.ChangePassword(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password updated")
			return nil
		},
	}
}
