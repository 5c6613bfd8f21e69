package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelsmith/internal/config"
	"reelsmith/internal/daemonrun"
	"reelsmith/internal/pipeline"
	"reelsmith/internal/queue"
	"reelsmith/internal/queueaccess"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var userID string
	var title string
	var videoID string
	var submit bool

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Upload a local video and create its record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			var videoIDOut string
			err = ctx.withRuntime(cmd.Context(), func(rt *daemonrun.Runtime) error {
				video, err := rt.Pipeline.Ingest(cmd.Context(), pipeline.IngestRequest{
					Path:    path,
					UserID:  userID,
					Title:   title,
					VideoID: videoID,
				})
				if err != nil {
					return err
				}
				videoIDOut = video.ID
				if ctx.jsonOutput() && !submit {
					return writeJSON(cmd, video)
				}
				if !ctx.jsonOutput() {
					fmt.Fprintf(cmd.OutOrStdout(), "Ingested %s as video %s (%s)\n", path, video.ID, video.OriginalFile.Key)
				}
				return nil
			})
			if err != nil || !submit {
				return err
			}

			return ctx.withAccess(cmd.Context(), func(s queueaccess.Session) error {
				job, err := s.Access.Submit(cmd.Context(), queue.SubmitRequest{VideoID: videoIDOut, UserID: userID})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s\n", job.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "cli", "Owner of the video")
	cmd.Flags().StringVarP(&title, "title", "t", "", "Title (defaults to the file name)")
	cmd.Flags().StringVar(&videoID, "id", "", "Video id (generated when empty)")
	cmd.Flags().BoolVar(&submit, "submit", false, "Queue the full pipeline after ingest (requires the daemon)")
	return cmd
}
