package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"allepoints-backend/lib/alle"
	"allepoints-backend/lib/timezone"
	"allepoints-backend/services/directory"
	"allepoints-backend/services/pointstore"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/collector")

var ErrSyncInProgress = fmt.Errorf("a sync is already running")

// PlatformClient is the slice of the Alle API the collector needs. It
// is satisfied by both *alle.Client and alle.StaticClient.
type PlatformClient interface {
	ListAllMembers(ctx context.Context) ([]alle.Member, error)
	GetMemberPoints(ctx context.Context, id string) (alle.Points, error)
	GetPointsHistory(ctx context.Context, id string, page, perPage int) (alle.HistoryPage, error)
}

type Options struct {
	Client     PlatformClient
	Directory  directory.Service
	Pointstore pointstore.Store
	// hours of the day (practice timezone) on which the daemon syncs
	SyncHours []int
}

// Service pulls the full roster from the platform and lands it in the
// directory and the point store.
type Service struct {
	client     PlatformClient
	directory  directory.Service
	pointstore pointstore.Store
	syncHours  []int

	mu sync.Mutex
}

func NewService(opts Options) *Service {
	if len(opts.SyncHours) == 0 {
		opts.SyncHours = []int{6, 14}
	}
	return &Service{
		client:     opts.Client,
		directory:  opts.Directory,
		pointstore: opts.Pointstore,
		syncHours:  opts.SyncHours,
	}
}

type Result struct {
	SyncId        string    `json:"sync_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	MembersSeen   int       `json:"members_seen"`
	MembersFailed int       `json:"members_failed"`
	Status        string    `json:"status"`
}

// RunOnce performs a full sync. Only one sync runs at a time, a second
// call while one is in flight fails with ErrSyncInProgress.
func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	if !s.mu.TryLock() {
		return Result{}, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "RunOnce")
	defer span.End()

	startedAt := timezone.Now()

	members, err := s.client.ListAllMembers(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list members")
		s.recordRun(ctx, directory.SyncRun{
			StartedAt:  startedAt,
			FinishedAt: timezone.Now(),
			Status:     directory.SyncStatusFailed,
			Error:      err.Error(),
		})
		return Result{}, err
	}
	span.SetAttributes(attribute.Int("members", len(members)))

	var upserts []directory.MemberUpsert
	var balances []pointstore.BalanceSnapshot
	var derived []pointstore.HistoryEntry
	failed := 0

	// doing these in serial to stay under the platform's rate limits
	for _, m := range members {
		upsert := directory.MemberUpsert{
			Id:        m.Id,
			Name:      m.Name,
			Phone:     m.Phone,
			Email:     m.Email,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		}

		points, err := s.client.GetMemberPoints(ctx, m.Id)
		if err != nil {
			slog.WarnContext(ctx, "fetch member points", "member", m.Id, "err", err)
			failed++
			upserts = append(upserts, upsert)
			continue
		}

		upsert.Points = &directory.PointsUpdate{
			Points:    int64(points.Points),
			UpdatedAt: points.LastUpdated,
			ExpireAt:  points.ExpirationDate,
		}
		upserts = append(upserts, upsert)
		balances = append(balances, pointstore.BalanceSnapshot{
			MemberId: m.Id,
			Points:   int64(points.Points),
		})

		err = s.ingestHistory(ctx, m.Id)
		if err != nil {
			slog.WarnContext(ctx, "fetch points history", "member", m.Id, "err", err)
			// without the ledger we can still tell that the balance
			// moved since the last sync
			if entry, ok := s.deriveDelta(ctx, m.Id, int64(points.Points)); ok {
				derived = append(derived, entry)
			}
		}
	}

	syncTime := timezone.Now()
	err = s.directory.UpsertMembers(ctx, directory.UpsertRequest{
		SyncTime: syncTime,
		Members:  upserts,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upsert members")
		s.recordRun(ctx, directory.SyncRun{
			StartedAt:     startedAt,
			FinishedAt:    timezone.Now(),
			MembersSeen:   int64(len(members)),
			MembersFailed: int64(failed),
			Status:        directory.SyncStatusFailed,
			Error:         err.Error(),
		})
		return Result{}, err
	}

	err = s.pointstore.Push(ctx, pointstore.PushRequest{
		Time:     syncTime,
		Balances: balances,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to push balance snapshots")
		s.recordRun(ctx, directory.SyncRun{
			StartedAt:     startedAt,
			FinishedAt:    timezone.Now(),
			MembersSeen:   int64(len(members)),
			MembersFailed: int64(failed),
			Status:        directory.SyncStatusFailed,
			Error:         err.Error(),
		})
		return Result{}, err
	}

	if len(derived) > 0 {
		err := s.pointstore.AppendHistory(ctx, derived)
		if err != nil {
			slog.WarnContext(ctx, "append derived history", "err", err)
		}
	}

	status := directory.SyncStatusOk
	errMsg := ""
	if failed > 0 {
		status = directory.SyncStatusPartial
		errMsg = fmt.Sprintf("%d of %d members failed", failed, len(members))
	}

	finishedAt := timezone.Now()
	syncId := s.recordRun(ctx, directory.SyncRun{
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		MembersSeen:   int64(len(members)),
		MembersFailed: int64(failed),
		Status:        status,
		Error:         errMsg,
	})

	slog.InfoContext(
		ctx, "sync finished",
		"members", len(members),
		"failed", failed,
		"took", finishedAt.Sub(startedAt),
	)

	return Result{
		SyncId:        syncId,
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		MembersSeen:   len(members),
		MembersFailed: failed,
		Status:        status,
	}, nil
}

func (s *Service) recordRun(ctx context.Context, run directory.SyncRun) string {
	id, err := s.directory.RecordSyncRun(ctx, run)
	if err != nil {
		slog.ErrorContext(ctx, "record sync run", "err", err)
		return ""
	}
	return id
}

const historyPageSize = 50

// pulls the first page of the member's ledger. older entries were
// already stored by earlier runs and duplicates are skipped on insert.
func (s *Service) ingestHistory(ctx context.Context, memberId string) error {
	page, err := s.client.GetPointsHistory(ctx, memberId, 1, historyPageSize)
	if err != nil {
		return err
	}

	entries := make([]pointstore.HistoryEntry, len(page.History))
	for i, e := range page.History {
		entries[i] = pointstore.HistoryEntry{
			MemberId:     memberId,
			Date:         e.Date,
			Action:       alle.NormalizeAction(e.Action),
			PointsChange: int64(e.PointsChange),
			Description:  e.Description,
		}
	}
	return s.pointstore.AppendHistory(ctx, entries)
}

// compares the fresh balance against the one stored by the previous
// sync and synthesizes an adjustment entry for the difference
func (s *Service) deriveDelta(ctx context.Context, memberId string, points int64) (pointstore.HistoryEntry, bool) {
	previous, err := s.directory.GetMember(ctx, memberId)
	if err != nil || previous.Points == points {
		return pointstore.HistoryEntry{}, false
	}
	return pointstore.HistoryEntry{
		MemberId:     memberId,
		Date:         timezone.Now(),
		Action:       alle.ActionAdjust,
		PointsChange: points - previous.Points,
		Description:  "Balance changed between syncs",
	}, true
}
