package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelsmith/internal/api"
	"reelsmith/internal/queue"
	"reelsmith/internal/queueaccess"
)

const waitPollInterval = time.Second

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var userID string
	var from string
	var wait bool

	cmd := &cobra.Command{
		Use:   "submit <video-id>",
		Short: "Queue a video for processing",
		Long: "Queue a video for processing. Without --stage the whole pipeline runs;\n" +
			"with --stage the named stage and every later stage are regenerated.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(s queueaccess.Session) error {
				job, err := s.Access.Submit(cmd.Context(), queue.SubmitRequest{
					VideoID: args[0],
					UserID:  userID,
					Stage:   from,
				})
				if err != nil {
					return err
				}
				if wait {
					job, err = waitForJob(cmd.Context(), s.Access, job.ID)
					if err != nil {
						return err
					}
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, job)
				}
				printJob(cmd.OutOrStdout(), job)
				return jobFailure(job, wait)
			})
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "cli", "User id recorded on the job")
	cmd.Flags().StringVarP(&from, "stage", "s", "", "First stage to run (e.g. TRANSCRIBE)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the job to finish")
	return cmd
}

func newJobCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "job <job-id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(s queueaccess.Session) error {
				job, err := s.Access.Job(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, job)
				}
				printJob(cmd.OutOrStdout(), job)
				return nil
			})
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a waiting or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(s queueaccess.Session) error {
				job, err := s.Access.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancel requested for job %s (status: %s)\n", job.ID, job.Status)
				return nil
			})
		},
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts by status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withAccess(cmd.Context(), func(s queueaccess.Session) error {
				stats, err := s.Access.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, stats)
				}
				out := cmd.OutOrStdout()
				rows := [][]string{
					{"waiting", strconv.Itoa(stats.Waiting)},
					{"active", strconv.Itoa(stats.Active)},
					{"completed", strconv.Itoa(stats.Completed)},
					{"failed", strconv.Itoa(stats.Failed)},
				}
				fmt.Fprintln(out, renderTable([]string{"Status", "Jobs"}, rows, []columnAlignment{alignLeft, alignRight}))
				fmt.Fprintf(out, "Daemon running: %s\n", yesNo(s.Live))
				return nil
			})
		},
	}
}

// waitForJob polls until the job reaches a terminal status or ctx ends.
func waitForJob(ctx context.Context, access queueaccess.Access, id string) (api.Job, error) {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		job, err := access.Job(ctx, id)
		if err != nil {
			return api.Job{}, err
		}
		if status, ok := queue.ParseStatus(job.Status); ok && status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func jobFailure(job api.Job, waited bool) error {
	if waited && job.Status == string(queue.StatusFailed) {
		return errors.New("job failed: " + job.FailureReason)
	}
	return nil
}

func printJob(out io.Writer, job api.Job) {
	colorize := shouldColorize(out)
	keyValueLines(out, [][2]string{
		{"Job", job.ID},
		{"Video", job.VideoID},
		{"User", job.UserID},
		{"Stage", job.RequestedStage},
		{"Status", colorStatus(job.Status, colorize)},
		{"Failure", job.FailureReason},
		{"Created", job.CreatedAt},
		{"Started", job.ProcessedAt},
		{"Finished", job.FinishedAt},
	})
}

func jobRows(jobs []api.Job, colorize bool) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			job.RequestedStage,
			colorStatus(job.Status, colorize),
			job.CreatedAt,
			truncate(job.FailureReason, 60),
		})
	}
	return rows
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
