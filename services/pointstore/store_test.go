package pointstore

import (
	"context"
	"testing"
	"time"

	"allepoints-backend/lib/testutil"
	"allepoints-backend/lib/timezone"
	"allepoints-backend/services/pointstore/db"

	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) Store {
	result, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/pointstore",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)
	return NewStore(result.DB)
}

func TestPushDedupsSameDay(t *testing.T) {
	store := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	morning := time.Date(2024, time.May, 14, 10, 0, 0, 0, timezone.Location)
	evening := time.Date(2024, time.May, 14, 18, 0, 0, 0, timezone.Location)
	nextDay := time.Date(2024, time.May, 15, 10, 0, 0, 0, timezone.Location)

	{
		series, err := store.Series(ctx, "1001")
		if err != nil {
			t.Fatal(err)
		}
		require.Len(t, series, 0)
	}

	{
		err := store.Push(ctx, PushRequest{
			Time: morning,
			Balances: []BalanceSnapshot{
				{MemberId: "1001", Points: 100},
				{MemberId: "1002", Points: 50},
			},
		})
		if err != nil {
			t.Fatal(err)
		}

		err = store.Push(ctx, PushRequest{
			Time: evening,
			Balances: []BalanceSnapshot{
				{MemberId: "1001", Points: 120},
			},
		})
		if err != nil {
			t.Fatal(err)
		}

		err = store.Push(ctx, PushRequest{
			Time: nextDay,
			Balances: []BalanceSnapshot{
				{MemberId: "1001", Points: 130},
			},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	{
		series, err := store.Series(ctx, "1001")
		if err != nil {
			t.Fatal(err)
		}
		// the evening push replaced the morning one
		require.Len(t, series, 2)
		require.Equal(t, int64(120), series[0].Points)
		require.Equal(t, int64(130), series[1].Points)
		require.True(t, series[0].Time.Before(series[1].Time))
	}

	{
		series, err := store.Series(ctx, "1002")
		if err != nil {
			t.Fatal(err)
		}
		require.Len(t, series, 1)
		require.Equal(t, int64(50), series[0].Points)
	}
}

func TestHistoryDedup(t *testing.T) {
	store := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	base := time.Date(2024, time.April, 1, 12, 0, 0, 0, timezone.Location)
	entries := []HistoryEntry{
		{MemberId: "1001", Date: base, Action: "earn", PointsChange: 100, Description: "BOTOX Cosmetic treatment"},
		{MemberId: "1001", Date: base.Add(time.Hour * 24 * 20), Action: "earn", PointsChange: 100, Description: "JUVEDERM treatment"},
		{MemberId: "1001", Date: base.Add(time.Hour * 24 * 40), Action: "redeem", PointsChange: -50, Description: "Redeemed at checkout"},
	}

	err := store.AppendHistory(ctx, entries)
	if err != nil {
		t.Fatal(err)
	}

	// the platform overlaps pages between runs, known entries are
	// skipped instead of duplicated
	err = store.AppendHistory(ctx, append(entries, HistoryEntry{
		MemberId:     "1001",
		Date:         base.Add(time.Hour * 24 * 60),
		Action:       "earn",
		PointsChange: 75,
		Description:  "CoolSculpting session",
	}))
	if err != nil {
		t.Fatal(err)
	}

	{
		got, total, err := store.History(ctx, "1001", 1, 50)
		if err != nil {
			t.Fatal(err)
		}
		require.Equal(t, int64(4), total)
		require.Len(t, got, 4)
		require.Equal(t, "CoolSculpting session", got[0].Description)
		require.Equal(t, "BOTOX Cosmetic treatment", got[3].Description)
	}

	{
		got, total, err := store.History(ctx, "1001", 2, 3)
		if err != nil {
			t.Fatal(err)
		}
		require.Equal(t, int64(4), total)
		require.Len(t, got, 1)
		require.Equal(t, "BOTOX Cosmetic treatment", got[0].Description)
	}

	{
		got, total, err := store.History(ctx, "1002", 1, 50)
		if err != nil {
			t.Fatal(err)
		}
		require.Equal(t, int64(0), total)
		require.Len(t, got, 0)
	}
}
