package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"allepoints-backend/lib/alle"
	"allepoints-backend/lib/testutil"
	"allepoints-backend/services/collector"
	"allepoints-backend/services/directory"
	directorydb "allepoints-backend/services/directory/db"
	"allepoints-backend/services/pointstore"
	pointstoredb "allepoints-backend/services/pointstore/db"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

var globalClient = resty.New()

func setup(t *testing.T, options Options) (string, directory.Service) {
	result, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/httpapi",
		DbSchema: directorydb.Schema,
	})
	t.Cleanup(cleanup)

	_, err := result.DB.Exec(pointstoredb.Schema)
	if err != nil {
		t.Fatal(err)
	}

	directoryService := directory.NewService(result.DB)
	store := pointstore.NewStore(result.DB)
	collectorService := collector.NewService(collector.Options{
		Client:     alle.NewStaticClient(alle.MockDataset()),
		Directory:  directoryService,
		Pointstore: store,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	_, err = collectorService.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}

	handler := NewHandler(directoryService, store, collectorService, options)
	server := httptest.NewServer(handler.Router())
	t.Cleanup(server.Close)

	return server.URL, directoryService
}

func get(t *testing.T, url string, out any) *resty.Response {
	res, err := globalClient.R().Get(url)
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		err = json.Unmarshal(res.Body(), out)
		if err != nil {
			t.Fatal(err)
		}
	}
	return res
}

func memberIds(members []directory.Member) []string {
	var ids []string
	for _, m := range members {
		ids = append(ids, m.Id)
	}
	return ids
}

func TestListMembers(t *testing.T) {
	url, _ := setup(t, Options{})

	{
		var list directory.ListResult
		res := get(t, url+"/api/v1/members", &list)
		require.Equal(t, http.StatusOK, res.StatusCode())
		require.Equal(t, []string{"1001", "1002", "1003", "1004", "1005"}, memberIds(list.Members))
		require.Equal(t, directory.Pagination{
			Page:         1,
			PageSize:     50,
			TotalPages:   1,
			TotalMembers: 5,
		}, list.Pagination)
	}

	{
		var list directory.ListResult
		get(t, url+"/api/v1/members?min_points=100", &list)
		require.Equal(t, []string{"1001", "1004"}, memberIds(list.Members))
	}

	{
		var list directory.ListResult
		get(t, url+"/api/v1/members?page=2&page_size=2", &list)
		require.Equal(t, []string{"1003", "1004"}, memberIds(list.Members))
		require.Equal(t, 3, list.Pagination.TotalPages)
	}

	// per_page is what the platform's own api calls it
	{
		var list directory.ListResult
		get(t, url+"/api/v1/members?page=2&per_page=2", &list)
		require.Equal(t, []string{"1003", "1004"}, memberIds(list.Members))
	}

	{
		var envelope errorBody
		res := get(t, url+"/api/v1/members?page=abc", &envelope)
		require.Equal(t, http.StatusBadRequest, res.StatusCode())
		require.Equal(t, "INVALID_ARGUMENT", envelope.Error.Code)
	}
}

func TestSearchMembers(t *testing.T) {
	url, _ := setup(t, Options{})

	{
		var list directory.ListResult
		get(t, url+"/api/v1/members?q=555-234", &list)
		require.Equal(t, []string{"1002"}, memberIds(list.Members))
	}

	{
		var list directory.ListResult
		get(t, url+"/api/v1/members?q=alice", &list)
		require.Equal(t, []string{"1004"}, memberIds(list.Members))
	}

	{
		var list directory.ListResult
		get(t, url+"/api/v1/members?q=zzzzzz", &list)
		require.Empty(t, list.Members)
		require.Equal(t, 0, list.Pagination.TotalMembers)
	}
}

func TestGetMember(t *testing.T) {
	url, _ := setup(t, Options{})

	{
		var member directory.Member
		res := get(t, url+"/api/v1/members/1001", &member)
		require.Equal(t, http.StatusOK, res.StatusCode())
		require.Equal(t, "John Doe", member.Name)
		require.Equal(t, int64(150), member.Points)
	}

	{
		var envelope errorBody
		res := get(t, url+"/api/v1/members/9999", &envelope)
		require.Equal(t, http.StatusNotFound, res.StatusCode())
		require.Equal(t, "NOT_FOUND", envelope.Error.Code)
	}
}

func TestGetMemberPoints(t *testing.T) {
	url, _ := setup(t, Options{})

	{
		var points memberPoints
		res := get(t, url+"/api/v1/members/1001/points", &points)
		require.Equal(t, http.StatusOK, res.StatusCode())
		require.Equal(t, "1001", points.MemberId)
		require.Equal(t, int64(150), points.Points)
		require.NotNil(t, points.ExpirationDate)
	}

	{
		var points memberPoints
		get(t, url+"/api/v1/members/1003/points", &points)
		require.Equal(t, int64(0), points.Points)
		require.Nil(t, points.ExpirationDate)
	}

	{
		var envelope errorBody
		res := get(t, url+"/api/v1/members/9999/points", &envelope)
		require.Equal(t, http.StatusNotFound, res.StatusCode())
		require.Equal(t, "NOT_FOUND", envelope.Error.Code)
	}
}

func TestPointsReadCache(t *testing.T) {
	url, directoryService := setup(t, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	{
		var points memberPoints
		get(t, url+"/api/v1/members/1001/points", &points)
		require.Equal(t, int64(150), points.Points)
	}

	err := directoryService.UpsertMembers(ctx, directory.UpsertRequest{
		SyncTime: time.Now(),
		Members: []directory.MemberUpsert{{
			Id:    "1001",
			Name:  "John Doe",
			Phone: "555-123-4567",
			Email: "john.doe@example.com",
			Points: &directory.PointsUpdate{
				Points:    999,
				UpdatedAt: time.Now(),
			},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	// the member endpoint is uncached and sees the change right away
	{
		var member directory.Member
		get(t, url+"/api/v1/members/1001", &member)
		require.Equal(t, int64(999), member.Points)
	}

	// the points read is still served from cache
	{
		var points memberPoints
		get(t, url+"/api/v1/members/1001/points", &points)
		require.Equal(t, int64(150), points.Points)
	}
}

func TestGetPointsHistory(t *testing.T) {
	url, _ := setup(t, Options{})

	{
		var history historyResponse
		res := get(t, url+"/api/v1/members/1001/points/history", &history)
		require.Equal(t, http.StatusOK, res.StatusCode())
		require.Equal(t, "1001", history.MemberId)
		require.Len(t, history.History, 3)
		require.Equal(t, "Redeemed at checkout", history.History[0].Description)
		require.Equal(t, int64(-50), history.History[0].PointsChange)
		require.Equal(t, historyPagination{
			Page:         1,
			PageSize:     50,
			TotalPages:   1,
			TotalEntries: 3,
		}, history.Pagination)
	}

	{
		var history historyResponse
		get(t, url+"/api/v1/members/1001/points/history?page=2&page_size=2", &history)
		require.Len(t, history.History, 1)
		require.Equal(t, 2, history.Pagination.TotalPages)
	}

	{
		var envelope errorBody
		res := get(t, url+"/api/v1/members/9999/points/history", &envelope)
		require.Equal(t, http.StatusNotFound, res.StatusCode())
		require.Equal(t, "NOT_FOUND", envelope.Error.Code)
	}
}

func TestGetPointsSeries(t *testing.T) {
	url, _ := setup(t, Options{})

	var series seriesResponse
	res := get(t, url+"/api/v1/members/1001/points/series", &series)
	require.Equal(t, http.StatusOK, res.StatusCode())
	require.Len(t, series.Series, 1)
	require.Equal(t, int64(150), series.Series[0].Points)
}

func TestGetSummary(t *testing.T) {
	url, _ := setup(t, Options{})

	var summary summaryResponse
	res := get(t, url+"/api/v1/points/summary", &summary)
	require.Equal(t, http.StatusOK, res.StatusCode())
	require.Equal(t, int64(5), summary.TotalMembers)
	require.Equal(t, int64(4), summary.MembersWithPoints)
	require.Equal(t, int64(475), summary.TotalPoints)
	require.Equal(t, 95.0, summary.AveragePoints)
	require.Equal(t, int64(200), summary.MaxPoints)
	require.Equal(t, int64(1), summary.ExpiringSoon)
	require.NotNil(t, summary.LastSync)
	require.Equal(t, directory.SyncStatusOk, summary.LastSync.Status)
}

func TestHealthz(t *testing.T) {
	url, _ := setup(t, Options{})

	var health healthResponse
	res := get(t, url+"/healthz", &health)
	require.Equal(t, http.StatusOK, res.StatusCode())
	require.Equal(t, "ok", health.Status)
	require.NotNil(t, health.LastSync)
}

func TestTriggerSync(t *testing.T) {
	url, _ := setup(t, Options{})

	res, err := globalClient.R().Post(url + "/api/v1/sync")
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, http.StatusOK, res.StatusCode())

	var result collector.Result
	err = json.Unmarshal(res.Body(), &result)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 5, result.MembersSeen)
	require.Equal(t, directory.SyncStatusOk, result.Status)
	require.NotEmpty(t, result.SyncId)
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

func TestTriggerSyncConflict(t *testing.T) {
	result, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/httpapi",
		DbSchema: directorydb.Schema,
	})
	t.Cleanup(cleanup)

	_, err := result.DB.Exec(pointstoredb.Schema)
	if err != nil {
		t.Fatal(err)
	}

	directoryService := directory.NewService(result.DB)
	store := pointstore.NewStore(result.DB)
	client := blockingClient{
		StaticClient: alle.NewStaticClient(alle.MockDataset()),
		started:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	collectorService := collector.NewService(collector.Options{
		Client:     client,
		Directory:  directoryService,
		Pointstore: store,
	})

	handler := NewHandler(directoryService, store, collectorService, Options{})
	server := httptest.NewServer(handler.Router())
	t.Cleanup(server.Close)

	first := make(chan *resty.Response, 1)
	go func() {
		res, err := globalClient.R().Post(server.URL + "/api/v1/sync")
		if err != nil {
			t.Error(err)
		}
		first <- res
	}()
	<-client.started

	res, err := globalClient.R().Post(server.URL + "/api/v1/sync")
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, http.StatusConflict, res.StatusCode())

	var envelope errorBody
	err = json.Unmarshal(res.Body(), &envelope)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "SYNC_IN_PROGRESS", envelope.Error.Code)

	close(client.release)
	require.Equal(t, http.StatusOK, (<-first).StatusCode())
}

func TestBearerAuth(t *testing.T) {
	url, _ := setup(t, Options{AccessToken: "dashboard-token"})

	{
		var envelope errorBody
		res := get(t, url+"/api/v1/members", &envelope)
		require.Equal(t, http.StatusUnauthorized, res.StatusCode())
		require.Equal(t, "UNAUTHENTICATED", envelope.Error.Code)
	}

	{
		res, err := globalClient.R().
			SetHeader("Authorization", "Bearer wrong").
			Get(url + "/api/v1/members")
		if err != nil {
			t.Fatal(err)
		}
		require.Equal(t, http.StatusUnauthorized, res.StatusCode())
	}

	{
		res, err := globalClient.R().
			SetHeader("Authorization", "Bearer dashboard-token").
			Get(url + "/api/v1/members")
		if err != nil {
			t.Fatal(err)
		}
		require.Equal(t, http.StatusOK, res.StatusCode())
	}

	// liveness probes don't carry credentials
	{
		res := get(t, url+"/healthz", nil)
		require.Equal(t, http.StatusOK, res.StatusCode())
	}
}

func TestRateLimit(t *testing.T) {
	url, _ := setup(t, Options{RateLimit: 2})

	get(t, url+"/api/v1/members", nil)
	get(t, url+"/api/v1/members", nil)

	var envelope errorBody
	res := get(t, url+"/api/v1/members", &envelope)
	require.Equal(t, http.StatusTooManyRequests, res.StatusCode())
	require.Equal(t, "RATE_LIMITED", envelope.Error.Code)
	require.Equal(t, "60", res.Header().Get("Retry-After"))
}
