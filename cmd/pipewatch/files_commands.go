package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"pipewatch/internal/client"
)

func newFilesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage uploaded audio files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newFilesListCommand(ctx))
	cmd.AddCommand(newFilesUploadCommand(ctx))
	cmd.AddCommand(newFilesDeleteCommand(ctx))
	cmd.AddCommand(newFilesStatusCommand(ctx))
	return cmd
}

func newFilesListCommand(ctx *commandContext) *cobra.Command {
	var page, size int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List uploaded files with their classifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			result, err := c.ListFiles(cmd.Context(), page, size)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(result.Files))
			for _, file := range result.Files {
				rows = append(rows, []string{
					strconv.FormatInt(file.ID, 10),
					file.OriginalName,
					file.StoredName,
					formatSize(file.Size),
					renderRiskLevel(file.RiskLevel, out),
					fmt.Sprintf("%.2f", file.Confidence),
					file.UploadedAt,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Stored As", "Size", "Risk", "Confidence", "Uploaded"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "Page %d of %d file(s) total\n", result.Page, result.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&size, "size", 10, "Page size")
	return cmd
}

func newFilesUploadCommand(ctx *commandContext) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload an audio file for classification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			file, err := c.UploadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Uploaded %s as %s (id %d)\n", file.OriginalName, file.StoredName, file.ID)

			if !wait {
				return nil
			}
			return waitForVerdict(cmd, c, file.StoredName)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until classification finishes")
	return cmd
}

// waitForVerdict polls the processing status until the pipeline reaches a
// terminal state or the command context is cancelled.
func waitForVerdict(cmd *cobra.Command, c *client.Client, storedName string) error {
	out := cmd.OutOrStdout()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		status, err := c.Status(cmd.Context(), storedName)
		if err != nil {
			return err
		}
		switch status.Status {
		case "completed":
			fmt.Fprintf(out, "Classified %s: %s (confidence %.2f)\n",
				storedName, renderRiskLevel(status.RiskLevel, out), status.Confidence)
			return nil
		case "error":
			return fmt.Errorf("classification failed: %s", status.Message)
		case "unknown":
			return errors.New("upload is no longer tracked by the server")
		}

		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-ticker.C:
		}
	}
}

func newFilesDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an uploaded file and its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid file id %q", args[0])
			}
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			if err := c.DeleteFile(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted file %d\n", id)
			return nil
		},
	}
}

func newFilesStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <stored-name>",
		Short: "Show the processing status of an upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			status, err := c.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch status.Status {
			case "completed":
				fmt.Fprintf(out, "completed: %s (confidence %.2f)\n",
					renderRiskLevel(status.RiskLevel, out), status.Confidence)
			case "error":
				fmt.Fprintf(out, "error: %s\n", status.Message)
			default:
				fmt.Fprintln(out, status.Status)
			}
			return nil
		},
	}
}

func formatSize(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(size)/float64(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(size)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
