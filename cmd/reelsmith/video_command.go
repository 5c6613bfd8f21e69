package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"reelsmith/internal/api"
	"reelsmith/internal/queueaccess"
)

func newVideoCommand(ctx *commandContext) *cobra.Command {
	var jobs int
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "video <video-id>",
		Short: "Show a video's status, transcript and artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return ctx.withAccess(cmd.Context(), func(s queueaccess.Session) error {
				out := cmd.OutOrStdout()
				if statusOnly {
					status, err := s.Access.VideoStatus(cmd.Context(), id)
					if err != nil {
						return err
					}
					if ctx.jsonOutput() {
						return writeJSON(cmd, status)
					}
					printVideoStatus(out, status)
					return nil
				}

				detail, err := s.Access.Video(cmd.Context(), id)
				if err != nil {
					return err
				}
				var recent []api.Job
				if jobs > 0 {
					if recent, err = s.Access.VideoJobs(cmd.Context(), id, jobs); err != nil {
						return err
					}
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, struct {
						api.VideoDetail
						Jobs []api.Job `json:"jobs,omitempty"`
					}{detail, recent})
				}
				printVideoDetail(out, detail)
				if len(recent) > 0 {
					fmt.Fprintln(out)
					fmt.Fprintln(out, renderTable([]string{"Job", "Stage", "Status", "Created", "Failure"},
						jobRows(recent, shouldColorize(out)), nil))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&jobs, "jobs", 5, "Number of recent jobs to list (0 to skip)")
	cmd.Flags().BoolVar(&statusOnly, "status", false, "Only print the processing status")
	return cmd
}

func printVideoStatus(out io.Writer, status api.VideoStatus) {
	colorize := shouldColorize(out)
	keyValueLines(out, [][2]string{
		{"Video", status.VideoID},
		{"Status", colorStatus(status.Status, colorize)},
		{"Stage", status.Processing.Stage},
		{"Progress", strconv.Itoa(status.Processing.Progress) + "%"},
		{"Error", status.Processing.Error},
		{"Started", status.Processing.StartedAt},
		{"Completed", status.Processing.CompletedAt},
	})
}

func printVideoDetail(out io.Writer, detail api.VideoDetail) {
	video := detail.Video
	if video == nil {
		return
	}
	view := video.View()
	printVideoStatus(out, api.FromStatusView(&view))
	pairs := [][2]string{{"Title", video.Title}, {"User", video.UserID}}
	if video.OriginalFile != nil {
		pairs = append(pairs, [2]string{"Original", video.OriginalFile.Key})
	}
	if video.ProcessedFile != nil {
		pairs = append(pairs, [2]string{"Processed", video.ProcessedFile.Key})
	}
	pairs = append(pairs,
		[2]string{"Captions", strconv.Itoa(len(video.Captions))},
		[2]string{"Scenes", strconv.Itoa(len(video.Metadata.Scenes))},
		[2]string{"Keyframes", strconv.Itoa(len(video.Metadata.Keyframes))},
	)
	if t := detail.Transcript; t != nil {
		pairs = append(pairs,
			[2]string{"Language", t.Language},
			[2]string{"Summary", truncate(t.Summary, 100)},
		)
	}
	keyValueLines(out, pairs)

	if len(detail.Artifacts) == 0 {
		return
	}
	rows := make([][]string, 0, len(detail.Artifacts))
	for _, a := range detail.Artifacts {
		rows = append(rows, []string{string(a.Kind), a.Key, strconv.FormatInt(a.SizeBytes, 10)})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable([]string{"Artifact", "Key", "Bytes"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
}
