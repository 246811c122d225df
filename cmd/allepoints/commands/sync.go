package commands

import (
	"log/slog"

	"allepoints-backend/lib/serviceutil"
	"allepoints-backend/services/collector"

	"github.com/spf13/cobra"
)

var syncMock *bool

func init() {
	syncMock = syncCmd.Flags().Bool("mock", false, "Sync from the built-in mock dataset, handy for seeding a development database.")
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync [--mock]",
	Short: "Runs one collection cycle into the local databases.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg := readConfig()
		directoryService, store := openServices(cfg)
		client := newPlatformClient(cfg.Alle, *syncMock)

		service := collector.NewService(collector.Options{
			Client:     client,
			Directory:  directoryService,
			Pointstore: store,
		})
		result, err := service.RunOnce(ctx)
		if err != nil {
			serviceutil.Fatal("sync", err)
		}
		slog.InfoContext(ctx, "sync finished",
			"members", result.MembersSeen,
			"failed", result.MembersFailed,
			"status", result.Status,
		)
	},
}
