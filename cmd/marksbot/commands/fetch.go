package commands

import (
	"fmt"
	"log/slog"
	"marksbot/internal/components/telemetry"
	"marksbot/internal/retrieve"
	"marksbot/pkg/serviceutil"

	"github.com/spf13/cobra"
)

var fetchOut *string

func init() {
	fetchOut = fetchCmd.Flags().String("out", "", "The directory to retrieve into, defaults to the temp dir.")
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url> [--out <dir>]",
	Short: "Retrieves a single file the way the bot does and prints where it was written.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		retriever := retrieve.NewRetriever(retrieve.Options{Dir: *fetchOut}, telemetry.SlogAPI{})

		artifact, err := retriever.Retrieve(cmd.Context(), args[0])
		if err != nil {
			serviceutil.Fatal("failed to retrieve", err)
		}

		slog.Info("retrieved", "name", artifact.Name(), "bytes", artifact.Size)
		fmt.Println(artifact.Path)
	},
}
