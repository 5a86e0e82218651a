package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// containersCmd lists the container formats the server offers.
var containersCmd = &cobra.Command{
	Use:   "containers",
	Short: "List available container formats",
	Long:  "List the container formats present in the server's video library.",
	RunE:  runContainers,
}

func init() {
	rootCmd.AddCommand(containersCmd)
}

func runContainers(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := dialServer(ctx, slog.Default())
	if err != nil {
		return err
	}
	defer client.Close()
	defer client.Disconnect(ctx)

	containers, err := client.ListContainers(ctx)
	if err != nil {
		return fmt.Errorf("listing containers: %w", err)
	}

	for _, container := range containers {
		fmt.Println(container)
	}
	return nil
}
