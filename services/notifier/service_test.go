package notifier

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"allepoints-backend/lib/testutil"
	"allepoints-backend/lib/timezone"
	"allepoints-backend/services/directory"
	directorydb "allepoints-backend/services/directory/db"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "modernc.org/sqlite"
)

var globalClient = resty.New()

func setup(t *testing.T) (Service, directory.Service) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/notifier",
		DbSchema: directorydb.Schema,
	})
	t.Cleanup(cleanup)

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	smtp, err := testcontainers.GenericContainer(
		context.Background(),
		testcontainers.GenericContainerRequest{
			Started: true,
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "haravich/fake-smtp-server",
				ExposedPorts: []string{"1025:1025", "1080:1080"},
				WaitingFor:   wait.ForLog("smtp://0.0.0.0:1025"),
			},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		err := smtp.Terminate(context.Background())
		if err != nil {
			t.Fatal(err)
		}
	})

	dir := directory.NewService(res.DB)
	service := NewService(dir, Options{
		Smtp: SmtpConfig{
			Server:       "localhost",
			Port:         1025,
			EmailAddress: "digest@clinic.example",
			Password:     "default",
		},
		Recipients: []string{"frontdesk@clinic.example"},
	})
	return service, dir
}

func TestSendDigest(t *testing.T) {
	service, dir := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	// an empty roster produces no mail
	err := service.SendDigest(ctx)
	if err != nil {
		t.Fatal(err)
	}

	expireSoon := timezone.Now().Add(time.Hour * 24 * 10)
	now := timezone.Now()
	err = dir.UpsertMembers(ctx, directory.UpsertRequest{
		SyncTime: now,
		Members: []directory.MemberUpsert{
			{
				Id: "1002", Name: "Jane Smith", Phone: "555-234-5678",
				Email: "jane.smith@example.com", CreatedAt: now, UpdatedAt: now,
				Points: &directory.PointsUpdate{Points: 75, UpdatedAt: now, ExpireAt: &expireSoon},
			},
			{
				Id: "1004", Name: "Alice Brown", Phone: "555-456-7890",
				Email: "alice.brown@example.com", CreatedAt: now, UpdatedAt: now,
				Points: &directory.PointsUpdate{Points: 200, UpdatedAt: now},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	{
		digest, err := service.BuildDigest(ctx)
		if err != nil {
			t.Fatal(err)
		}
		require.Len(t, digest.Expiring, 1)
		require.Equal(t, "Jane Smith", digest.Expiring[0].Name)
	}

	err = service.SendDigest(ctx)
	if err != nil {
		t.Fatal(err)
	}

	res, err := globalClient.R().
		Get("http://127.0.0.1:1080/messages/1.plain")
	if err != nil {
		t.Fatal(err)
	}
	body := res.String()
	require.Contains(t, body, "Jane Smith")
	require.Contains(t, body, "75 points")
	require.NotContains(t, body, "Alice Brown")
}
