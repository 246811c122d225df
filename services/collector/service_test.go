package collector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"allepoints-backend/lib/alle"
	"allepoints-backend/lib/testutil"
	"allepoints-backend/services/directory"
	directorydb "allepoints-backend/services/directory/db"
	"allepoints-backend/services/pointstore"
	pointstoredb "allepoints-backend/services/pointstore/db"

	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (directory.Service, pointstore.Store) {
	result, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/collector",
		DbSchema: directorydb.Schema,
	})
	t.Cleanup(cleanup)

	_, err := result.DB.Exec(pointstoredb.Schema)
	if err != nil {
		t.Fatal(err)
	}

	return directory.NewService(result.DB), pointstore.NewStore(result.DB)
}

func TestRunOnce(t *testing.T) {
	dir, store := setup(t)

	data := alle.MockDataset()
	service := NewService(Options{
		Client:     alle.NewStaticClient(data),
		Directory:  dir,
		Pointstore: store,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	result, err := service.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 5, result.MembersSeen)
	require.Equal(t, 0, result.MembersFailed)
	require.Equal(t, directory.SyncStatusOk, result.Status)
	require.NotEmpty(t, result.SyncId)

	{
		member, err := dir.GetMember(ctx, "1001")
		if err != nil {
			t.Fatal(err)
		}
		require.Equal(t, "John Doe", member.Name)
		require.Equal(t, int64(150), member.Points)
	}

	{
		series, err := store.Series(ctx, "1001")
		if err != nil {
			t.Fatal(err)
		}
		require.Len(t, series, 1)
		require.Equal(t, int64(150), series[0].Points)
	}

	{
		entries, total, err := store.History(ctx, "1001", 1, 50)
		if err != nil {
			t.Fatal(err)
		}
		require.Equal(t, int64(3), total)
		require.Equal(t, "Redeemed at checkout", entries[0].Description)
		require.Equal(t, alle.ActionRedeem, entries[0].Action)
	}

	{
		summary, err := dir.Summary(ctx, time.Hour*24*30)
		if err != nil {
			t.Fatal(err)
		}
		require.Equal(t, int64(5), summary.TotalMembers)
		require.Equal(t, int64(4), summary.MembersWithPoints)
		require.Equal(t, int64(475), summary.TotalPoints)
	}

	{
		run, ok, err := dir.LastSyncRun(ctx)
		if err != nil {
			t.Fatal(err)
		}
		require.True(t, ok)
		require.Equal(t, directory.SyncStatusOk, run.Status)
		require.Equal(t, int64(5), run.MembersSeen)
	}

	// a second sync on the same day replaces the day's snapshot
	// instead of adding another
	{
		_, err := service.RunOnce(ctx)
		if err != nil {
			t.Fatal(err)
		}
		series, err := store.Series(ctx, "1001")
		if err != nil {
			t.Fatal(err)
		}
		require.Len(t, series, 1)
	}
}

type flakyClient struct {
	alle.StaticClient
	failPoints  map[string]bool
	failHistory map[string]bool
}

func (c flakyClient) GetMemberPoints(ctx context.Context, id string) (alle.Points, error) {
	if c.failPoints[id] {
		return alle.Points{}, fmt.Errorf("the platform is having a bad day")
	}
	return c.StaticClient.GetMemberPoints(ctx, id)
}

func (c flakyClient) GetPointsHistory(ctx context.Context, id string, page, perPage int) (alle.HistoryPage, error) {
	if c.failHistory[id] {
		return alle.HistoryPage{}, fmt.Errorf("the platform is having a bad day")
	}
	return c.StaticClient.GetPointsHistory(ctx, id, page, perPage)
}

func TestRunOncePartialFailure(t *testing.T) {
	dir, store := setup(t)

	data := alle.MockDataset()
	service := NewService(Options{
		Client: flakyClient{
			StaticClient: alle.NewStaticClient(data),
			failPoints:   map[string]bool{"1002": true},
		},
		Directory:  dir,
		Pointstore: store,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	result, err := service.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 5, result.MembersSeen)
	require.Equal(t, 1, result.MembersFailed)
	require.Equal(t, directory.SyncStatusPartial, result.Status)

	// the member is still in the roster, just without a balance yet
	member, err := dir.GetMember(ctx, "1002")
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "Jane Smith", member.Name)
	require.Equal(t, int64(0), member.Points)

	series, err := store.Series(ctx, "1002")
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, series, 0)

	// the next healthy sync fills the balance in
	service = NewService(Options{
		Client:     alle.NewStaticClient(data),
		Directory:  dir,
		Pointstore: store,
	})
	_, err = service.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}

	member, err = dir.GetMember(ctx, "1002")
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, int64(75), member.Points)
}

func TestDerivedHistory(t *testing.T) {
	dir, store := setup(t)

	data := alle.MockDataset()
	service := NewService(Options{
		Client: flakyClient{
			StaticClient: alle.NewStaticClient(data),
			failHistory:  map[string]bool{"1004": true},
		},
		Directory:  dir,
		Pointstore: store,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	_, err := service.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// nothing to derive on the first run, the member was unknown
	_, total, err := store.History(ctx, "1004", 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, int64(0), total)

	// the balance moves while the ledger endpoint stays broken
	points := data.Points["1004"]
	points.Points = 250
	data.Points["1004"] = points

	_, err = service.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}

	entries, total, err := store.History(ctx, "1004", 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, int64(1), total)
	require.Equal(t, alle.ActionAdjust, entries[0].Action)
	require.Equal(t, int64(50), entries[0].PointsChange)
}

type blockingClient struct {
	alle.StaticClient
	started chan struct{}
	release chan struct{}
}

func (c blockingClient) ListAllMembers(ctx context.Context) ([]alle.Member, error) {
	c.started <- struct{}{}
	<-c.release
	return c.StaticClient.ListAllMembers(ctx)
}

func TestOnlyOneSyncAtATime(t *testing.T) {
	dir, store := setup(t)

	started := make(chan struct{})
	release := make(chan struct{})
	service := NewService(Options{
		Client: blockingClient{
			StaticClient: alle.NewStaticClient(alle.MockDataset()),
			started:      started,
			release:      release,
		},
		Directory:  dir,
		Pointstore: store,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := service.RunOnce(ctx)
		done <- err
	}()
	<-started

	_, err := service.RunOnce(ctx)
	require.ErrorIs(t, err, ErrSyncInProgress)

	close(release)
	require.NoError(t, <-done)
}
