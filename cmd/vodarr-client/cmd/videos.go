package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vodarr/internal/media"
	"github.com/jmylchreest/vodarr/pkg/format"
)

// videosCmd lists the videos the current bandwidth can sustain.
var videosCmd = &cobra.Command{
	Use:   "videos <container>",
	Short: "List watchable videos in a container format",
	Long: `List the videos available in the given container format.

Only variants at or below the resolution the measured bandwidth supports
are shown. Use --bandwidth to skip the probe.`,
	Args: cobra.ExactArgs(1),
	RunE: runVideos,
}

func init() {
	rootCmd.AddCommand(videosCmd)
}

func runVideos(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	container, ok := media.ParseContainer(args[0])
	if !ok {
		return fmt.Errorf("unknown container format %q (want mp4, mkv or avi)", args[0])
	}

	client, err := dialServer(ctx, logger)
	if err != nil {
		return err
	}
	defer client.Close()
	defer client.Disconnect(ctx)

	bandwidth := resolveBandwidth(ctx, logger)

	videos, err := client.ListVideos(ctx, container, bandwidth)
	if err != nil {
		return fmt.Errorf("listing videos: %w", err)
	}

	if len(videos) == 0 {
		fmt.Println("no videos available")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TITLE\tRESOLUTION\tCONTAINER")
	for _, v := range videos {
		fmt.Fprintf(w, "%s\t%s\t%s\n", v.Title, v.Resolution, v.Container)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%s video(s) watchable\n", format.Number(int64(len(videos))))
	return nil
}
