package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"reelsmith/internal/api"
	"reelsmith/internal/daemonrun"
	"reelsmith/internal/queue"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var from string
	var userID string

	cmd := &cobra.Command{
		Use:   "run <video-id>",
		Short: "Run the pipeline for one video in the foreground",
		Long: "Run the pipeline for one video in this process without a daemon.\n" +
			"The video lease is taken exactly as the daemon would, so a concurrent\n" +
			"daemon job for the same video is rejected.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd.Context(), func(rt *daemonrun.Runtime) error {
				q := queue.NewInProcess(rt.Jobs, rt.Pipeline, rt.Videos, queue.Options{
					Workers: 1,
					Owner:   fmt.Sprintf("cli-%d", os.Getpid()),
					Logger:  rt.Logger,
				})
				if err := q.Start(cmd.Context()); err != nil {
					return err
				}
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					_ = q.Shutdown(shutdownCtx)
				}()

				submitted, err := q.Submit(cmd.Context(), queue.SubmitRequest{VideoID: args[0], UserID: userID, Stage: from})
				if err != nil {
					return err
				}
				job, err := waitForQueueJob(cmd.Context(), q, submitted.ID)
				if err != nil {
					return err
				}
				view := api.FromJob(job)
				if ctx.jsonOutput() {
					return writeJSON(cmd, view)
				}
				printJob(cmd.OutOrStdout(), view)
				return jobFailure(view, true)
			})
		},
	}

	cmd.Flags().StringVarP(&from, "stage", "s", "", "First stage to run (e.g. TRANSCRIBE)")
	cmd.Flags().StringVarP(&userID, "user", "u", "cli", "User id recorded on the job")
	return cmd
}

// waitForQueueJob polls q until the job is terminal. When ctx ends first the
// job is cancelled so the video lease is released before returning.
func waitForQueueJob(ctx context.Context, q queue.Queue, id string) (*queue.Job, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		job, err := q.Status(context.WithoutCancel(ctx), id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			_ = q.Cancel(context.WithoutCancel(ctx), id)
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
