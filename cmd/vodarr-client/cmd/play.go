package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/vodarr/internal/control"
	"github.com/jmylchreest/vodarr/internal/media"
	"github.com/jmylchreest/vodarr/internal/player"
)

var (
	playContainer  string
	playResolution string
	playTransport  string
	playNoPlayer   bool
)

// playCmd streams a video and hands it to the media player.
var playCmd = &cobra.Command{
	Use:   "play <title>",
	Short: "Stream a video",
	Long: `Stream a video from the server and play it with ffplay.

The resolution is chosen from the measured bandwidth unless --resolution
is given. The transport follows the resolution: 240p over TCP, 360p and
480p over UDP, 720p and 1080p over RTP. Use --transport to override.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	playCmd.Flags().StringVar(&playContainer, "container", "mkv", "container format (mp4, mkv, avi)")
	playCmd.Flags().StringVar(&playResolution, "resolution", "", "resolution override (240p..1080p); default follows bandwidth")
	playCmd.Flags().StringVar(&playTransport, "transport", "", "transport override (tcp, udp, rtp); default follows resolution")
	playCmd.Flags().BoolVar(&playNoPlayer, "no-player", false, "print the receiver URL instead of launching ffplay")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := slog.Default()
	title := args[0]

	container, ok := media.ParseContainer(playContainer)
	if !ok {
		return fmt.Errorf("unknown container format %q (want mp4, mkv or avi)", playContainer)
	}

	client, err := dialServer(ctx, logger)
	if err != nil {
		return err
	}
	defer client.Close()
	defer client.Disconnect(ctx)

	var resolution media.Resolution
	if playResolution != "" {
		resolution, ok = media.ParseResolution(playResolution)
		if !ok {
			return fmt.Errorf("unknown resolution %q (want 240p, 360p, 480p, 720p or 1080p)", playResolution)
		}
	} else {
		resolution = media.ResolutionForBandwidth(resolveBandwidth(ctx, logger))
	}

	transport := player.ChooseTransport(resolution)
	if playTransport != "" {
		transport, ok = media.ParseTransport(playTransport)
		if !ok {
			return fmt.Errorf("unknown transport %q (want tcp, udp or rtp)", playTransport)
		}
	}

	// Datagram transports need a local port for the server to aim at.
	localPort := 0
	if transport != media.TransportTCP {
		localPort, err = player.RandomLocalPort()
		if err != nil {
			return fmt.Errorf("picking receive port: %w", err)
		}
	}

	endpoint, err := client.StartStream(ctx, title, resolution, container, transport, localPort)
	switch {
	case errors.Is(err, control.ErrNotFound):
		return fmt.Errorf("no %s variant of %q in %s on the server", resolution, title, container)
	case errors.Is(err, control.ErrBusy):
		return fmt.Errorf("a stream is already active on this session")
	case err != nil:
		return fmt.Errorf("starting stream: %w", err)
	}

	receiverURL, err := player.ReceiverURL(endpoint, localPort)
	if err != nil {
		return fmt.Errorf("building receiver url: %w", err)
	}

	fmt.Fprintf(os.Stderr, "streaming %s %s (%s) from %s\n", title, resolution, container, endpoint)

	if playNoPlayer {
		fmt.Println(receiverURL)
		return nil
	}

	p, err := player.New(viper.GetString("player.binary"), logger)
	if err != nil {
		return fmt.Errorf("locating media player: %w", err)
	}
	if err := p.Play(ctx, receiverURL, transport); err != nil {
		return fmt.Errorf("playing stream: %w", err)
	}
	return nil
}
