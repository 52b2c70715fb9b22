package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"comic2kindle/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var sessionFilter string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List conversion jobs from the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := jobs.Open(cfg)
			if err != nil {
				return fmt.Errorf("open job registry: %w", err)
			}
			defer func() { _ = store.Close() }()

			var list []*jobs.Job
			if sessionFilter != "" {
				list, err = store.BySession(cmd.Context(), sessionFilter)
			} else {
				list, err = store.List(cmd.Context())
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No jobs recorded")
				return nil
			}

			rows := make([][]string, 0, len(list))
			for _, job := range list {
				detail := job.CurrentFile
				if job.Status == jobs.StatusFailed {
					detail = job.ErrorMessage
				}
				if job.Status == jobs.StatusCompleted {
					detail = fmt.Sprintf("%d files", len(job.OutputFiles))
				}
				rows = append(rows, []string{
					shortID(job.ID),
					shortID(job.SessionID),
					string(job.Status),
					fmt.Sprintf("%.0f%%", job.Progress),
					humanize.RelTime(job.CreatedAt, time.Now(), "ago", "from now"),
					detail,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Job", "Session", "Status", "Progress", "Created", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionFilter, "session", "", "Only show jobs belonging to a session")
	return cmd
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
