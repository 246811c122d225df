package commands

import (
	"fmt"
	"os"
	"time"

	"allepoints-backend/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(summaryCmd)
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Prints aggregate points statistics from the local database.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg := readConfig()
		directoryService, _ := openServices(cfg)

		summary, err := directoryService.Summary(ctx, time.Hour*24*30)
		if err != nil {
			serviceutil.Fatal("summarize", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendRow(table.Row{"Total members", summary.TotalMembers})
		t.AppendRow(table.Row{"Members with points", summary.MembersWithPoints})
		t.AppendRow(table.Row{"Total points outstanding", summary.TotalPoints})
		t.AppendRow(table.Row{"Average points", fmt.Sprintf("%.1f", summary.AveragePoints)})
		t.AppendRow(table.Row{"Max points", summary.MaxPoints})
		t.AppendRow(table.Row{"Expiring within 30 days", summary.ExpiringSoon})
		t.SetStyle(table.StyleRounded)
		t.Render()

		run, ok, err := directoryService.LastSyncRun(ctx)
		if err != nil {
			serviceutil.Fatal("read last sync run", err)
		}
		if !ok {
			fmt.Println("\nNo sync has run yet.")
			return
		}
		fmt.Printf("\nLast sync: %s (%s), %d members, %d failed\n",
			run.FinishedAt.Format(time.RFC822),
			run.Status,
			run.MembersSeen,
			run.MembersFailed,
		)
	},
}
