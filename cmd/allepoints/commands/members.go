package commands

import (
	"fmt"
	"os"
	"strings"

	"allepoints-backend/lib/serviceutil"
	"allepoints-backend/services/directory"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var membersMinPoints *int64

func init() {
	membersMinPoints = membersCmd.Flags().Int64("min-points", 0, "Only include members with at least this many points.")
	rootCmd.AddCommand(membersCmd)
}

var membersCmd = &cobra.Command{
	Use:   "members [query]",
	Short: "Lists members from the local database, optionally filtered by a search query.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg := readConfig()
		directoryService, _ := openServices(cfg)

		var members []directory.Member
		var total int
		if len(args) > 0 {
			matches, err := directoryService.SearchMembers(ctx, args[0])
			if err != nil {
				serviceutil.Fatal("search members", err)
			}
			members = matches
			total = len(matches)
		} else {
			result, err := directoryService.ListMembers(ctx, directory.ListRequest{
				MinPoints: *membersMinPoints,
				PageSize:  100,
			})
			if err != nil {
				serviceutil.Fatal("list members", err)
			}
			members = result.Members
			total = result.Pagination.TotalMembers
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Name", "Phone", "Email", "Points", "Expires"})
		for _, m := range members {
			expires := "-"
			if m.PointsExpireAt != nil {
				expires = m.PointsExpireAt.Format("Jan 2, 2006")
			}
			t.AppendRow(table.Row{m.Id, m.Name, m.Phone, m.Email, m.Points, expires})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()

		if total > len(members) {
			fmt.Printf("\nShowing %d of %d members.\n", len(members), total)
		}
		if total == 0 && len(args) > 0 {
			fmt.Printf("No members matched %q, try `allepoints sync` first if the database is empty.\n", strings.TrimSpace(args[0]))
		}
	},
}
