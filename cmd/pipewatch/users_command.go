package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newUsersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List registered users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			users, err := c.ListUsers(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(users))
			for _, user := range users {
				rows = append(rows, []string{
					strconv.FormatInt(user.ID, 10),
					user.Username,
					user.CreatedAt,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Username", "Created"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}
