package commands

import (
	"fmt"
	"log/slog"
	"os"

	"allepoints-backend/lib/alle"
	"allepoints-backend/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var reportMock *bool
var reportMinPoints *int64

func init() {
	reportMock = reportCmd.Flags().Bool("mock", false, "Use the built-in mock dataset instead of the live platform.")
	reportMinPoints = reportCmd.Flags().Int64("min-points", 0, "Only include members with at least this many points.")
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report [--mock] [--min-points <n>]",
	Short: "Pulls every member from the platform and prints a points report.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg := readConfig()
		client := newPlatformClient(cfg.Alle, *reportMock)

		members, err := client.ListAllMembers(ctx)
		if err != nil {
			serviceutil.Fatal("list members", err)
		}

		type row struct {
			member alle.Member
			points alle.Points
		}
		var rows []row
		for _, m := range members {
			points, err := client.GetMemberPoints(ctx, m.Id)
			if err != nil {
				slog.WarnContext(ctx, "fetch member points", "member", m.Id, "err", err)
				continue
			}
			if int64(points.Points) < *reportMinPoints {
				continue
			}
			rows = append(rows, row{member: m, points: points})
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Name", "Phone", "Email", "Points", "Expires"})

		var totalPoints, maxPoints, withPoints int64
		for _, r := range rows {
			expires := "-"
			if r.points.ExpirationDate != nil {
				expires = r.points.ExpirationDate.Format("Jan 2, 2006")
			}
			t.AppendRow(table.Row{
				r.member.Id,
				r.member.Name,
				r.member.Phone,
				r.member.Email,
				int64(r.points.Points),
				expires,
			})

			totalPoints += int64(r.points.Points)
			if int64(r.points.Points) > maxPoints {
				maxPoints = int64(r.points.Points)
			}
			if r.points.Points > 0 {
				withPoints++
			}
		}

		t.SetStyle(table.StyleRounded)
		t.Render()

		average := 0.0
		if len(rows) > 0 {
			average = float64(totalPoints) / float64(len(rows))
		}
		fmt.Printf("\nMembers: %d\n", len(rows))
		fmt.Printf("Members with points: %d\n", withPoints)
		fmt.Printf("Total points outstanding: %d\n", totalPoints)
		fmt.Printf("Average points: %.1f\n", average)
		fmt.Printf("Max points: %d\n", maxPoints)
	},
}
