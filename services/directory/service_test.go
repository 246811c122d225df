package directory

import (
	"context"
	"testing"
	"time"

	"allepoints-backend/lib/testutil"
	"allepoints-backend/lib/timezone"
	"allepoints-backend/services/directory/db"

	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) Service {
	result, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/directory",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)
	return NewService(result.DB)
}

func member(id, name, phoneNumber, email string, points int64, expireAt *time.Time) MemberUpsert {
	now := timezone.Now()
	return MemberUpsert{
		Id:        id,
		Name:      name,
		Phone:     phoneNumber,
		Email:     email,
		CreatedAt: now.Add(-time.Hour * 24 * 30),
		UpdatedAt: now,
		Points: &PointsUpdate{
			Points:    points,
			UpdatedAt: now,
			ExpireAt:  expireAt,
		},
	}
}

func TestRosterUpsert(t *testing.T) {
	service := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	expireSoon := timezone.Now().Add(time.Hour * 24 * 10)

	{
		err := service.UpsertMembers(ctx, UpsertRequest{
			SyncTime: timezone.Now(),
			Members: []MemberUpsert{
				member("1001", "John Doe", "555-123-4567", "john.doe@example.com", 150, &expireSoon),
				member("1002", "Jane Smith", "555-234-5678", "jane.smith@example.com", 40, nil),
				member("1003", "Bob Johnson", "555-345-6789", "bob.johnson@example.com", 0, nil),
			},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	{
		got, err := service.GetMember(ctx, "1001")
		if err != nil {
			t.Fatal(err)
		}
		require.Equal(t, "John Doe", got.Name)
		require.Equal(t, int64(150), got.Points)
		require.NotNil(t, got.PointsExpireAt)

		_, err = service.GetMember(ctx, "9999")
		require.ErrorIs(t, err, ErrMemberNotFound)
	}

	{
		result, err := service.ListMembers(ctx, ListRequest{})
		if err != nil {
			t.Fatal(err)
		}
		require.Len(t, result.Members, 3)
		require.Equal(t, 1, result.Pagination.TotalPages)
		require.Equal(t, 3, result.Pagination.TotalMembers)
	}

	{
		result, err := service.ListMembers(ctx, ListRequest{MinPoints: 100})
		if err != nil {
			t.Fatal(err)
		}
		require.Len(t, result.Members, 1)
		require.Equal(t, "1001", result.Members[0].Id)
	}

	{
		result, err := service.ListMembers(ctx, ListRequest{Page: 2, PageSize: 2})
		if err != nil {
			t.Fatal(err)
		}
		require.Len(t, result.Members, 1)
		require.Equal(t, 2, result.Pagination.TotalPages)
		require.Equal(t, "1003", result.Members[0].Id)
	}

	// the second sync drops 1003 and fails to fetch 1002's balance
	{
		err := service.UpsertMembers(ctx, UpsertRequest{
			SyncTime: timezone.Now().Add(time.Hour),
			Members: []MemberUpsert{
				member("1001", "John Doe", "555-123-4567", "john.doe@example.com", 100, nil),
				{
					Id:        "1002",
					Name:      "Jane Smith-Jones",
					Phone:     "555-234-5678",
					Email:     "jane.smith@example.com",
					CreatedAt: timezone.Now().Add(-time.Hour * 24 * 30),
					UpdatedAt: timezone.Now(),
				},
			},
		})
		if err != nil {
			t.Fatal(err)
		}

		_, err = service.GetMember(ctx, "1003")
		require.ErrorIs(t, err, ErrMemberNotFound)

		jane, err := service.GetMember(ctx, "1002")
		if err != nil {
			t.Fatal(err)
		}
		require.Equal(t, "Jane Smith-Jones", jane.Name)
		require.Equal(t, int64(40), jane.Points)

		john, err := service.GetMember(ctx, "1001")
		if err != nil {
			t.Fatal(err)
		}
		require.Equal(t, int64(100), john.Points)
		require.Nil(t, john.PointsExpireAt)
	}

	// an empty sync result must not wipe the roster
	{
		err := service.UpsertMembers(ctx, UpsertRequest{
			SyncTime: timezone.Now().Add(time.Hour * 2),
		})
		if err != nil {
			t.Fatal(err)
		}

		result, err := service.ListMembers(ctx, ListRequest{})
		if err != nil {
			t.Fatal(err)
		}
		require.Len(t, result.Members, 2)
	}
}

func TestSearchMembers(t *testing.T) {
	service := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	err := service.UpsertMembers(ctx, UpsertRequest{
		SyncTime: timezone.Now(),
		Members: []MemberUpsert{
			member("1001", "John Doe", "555-123-4567", "john.doe@example.com", 150, nil),
			member("1002", "Jane Smith", "555-234-5678", "jane.smith@example.com", 75, nil),
			member("1003", "Bob Johnson", "555-345-6789", "bob.johnson@example.com", 0, nil),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	{
		matches, err := service.SearchMembers(ctx, "555-234")
		if err != nil {
			t.Fatal(err)
		}
		require.Len(t, matches, 1)
		require.Equal(t, "1002", matches[0].Id)
	}

	{
		matches, err := service.SearchMembers(ctx, "(555) 123-4567")
		if err != nil {
			t.Fatal(err)
		}
		require.Len(t, matches, 1)
		require.Equal(t, "1001", matches[0].Id)
	}

	// a typo still finds the right member
	{
		matches, err := service.SearchMembers(ctx, "Jhon Doe")
		if err != nil {
			t.Fatal(err)
		}
		require.NotEmpty(t, matches)
		require.Equal(t, "1001", matches[0].Id)
	}

	{
		matches, err := service.SearchMembers(ctx, "smith")
		if err != nil {
			t.Fatal(err)
		}
		require.NotEmpty(t, matches)
		require.Equal(t, "1002", matches[0].Id)
	}

	{
		matches, err := service.SearchMembers(ctx, "zzzzzz")
		if err != nil {
			t.Fatal(err)
		}
		require.Empty(t, matches)
	}
}

func TestSummary(t *testing.T) {
	service := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	{
		summary, err := service.Summary(ctx, time.Hour*24*30)
		if err != nil {
			t.Fatal(err)
		}
		require.Equal(t, int64(0), summary.TotalMembers)
		require.Equal(t, float64(0), summary.AveragePoints)
	}

	expireSoon := timezone.Now().Add(time.Hour * 24 * 10)
	expireLater := timezone.Now().Add(time.Hour * 24 * 90)

	err := service.UpsertMembers(ctx, UpsertRequest{
		SyncTime: timezone.Now(),
		Members: []MemberUpsert{
			member("1001", "John Doe", "555-123-4567", "john.doe@example.com", 150, &expireLater),
			member("1002", "Jane Smith", "555-234-5678", "jane.smith@example.com", 75, &expireSoon),
			member("1003", "Bob Johnson", "555-345-6789", "bob.johnson@example.com", 0, nil),
			member("1004", "Alice Brown", "555-456-7890", "alice.brown@example.com", 200, nil),
			member("1005", "Charlie Davis", "555-567-8901", "charlie.davis@example.com", 50, nil),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	summary, err := service.Summary(ctx, time.Hour*24*30)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, int64(5), summary.TotalMembers)
	require.Equal(t, int64(4), summary.MembersWithPoints)
	require.Equal(t, int64(475), summary.TotalPoints)
	require.Equal(t, float64(95), summary.AveragePoints)
	require.Equal(t, int64(200), summary.MaxPoints)
	require.Equal(t, int64(1), summary.ExpiringSoon)

	expiring, err := service.ExpiringMembers(ctx, time.Hour*24*30)
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, expiring, 1)
	require.Equal(t, "1002", expiring[0].Id)
}

func TestSyncRuns(t *testing.T) {
	service := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	{
		_, ok, err := service.LastSyncRun(ctx)
		if err != nil {
			t.Fatal(err)
		}
		require.False(t, ok)
	}

	start := timezone.Now().Add(-time.Minute * 10)
	{
		id, err := service.RecordSyncRun(ctx, SyncRun{
			StartedAt:   start,
			FinishedAt:  start.Add(time.Minute),
			MembersSeen: 5,
			Status:      SyncStatusOk,
		})
		if err != nil {
			t.Fatal(err)
		}
		require.NotEmpty(t, id)
	}
	{
		_, err := service.RecordSyncRun(ctx, SyncRun{
			StartedAt:     start.Add(time.Minute * 5),
			FinishedAt:    start.Add(time.Minute * 6),
			MembersSeen:   5,
			MembersFailed: 2,
			Status:        SyncStatusPartial,
			Error:         "2 members failed",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	run, ok, err := service.LastSyncRun(ctx)
	if err != nil {
		t.Fatal(err)
	}
	require.True(t, ok)
	require.Equal(t, SyncStatusPartial, run.Status)
	require.Equal(t, int64(2), run.MembersFailed)
}
