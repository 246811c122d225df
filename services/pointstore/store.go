package pointstore

import (
	"context"
	"database/sql"
	"time"

	"allepoints-backend/lib/timezone"
	"allepoints-backend/services/pointstore/db"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("services/pointstore")

// Store keeps the balance timeline for every member: one snapshot per
// day plus the action ledger pulled from the platform.
type Store struct {
	db  *sql.DB
	qry *db.Queries
}

func NewStore(database *sql.DB) Store {
	return Store{
		db:  database,
		qry: db.New(database),
	}
}

type BalanceSnapshot struct {
	MemberId string
	Points   int64
}

type PushRequest struct {
	Time     time.Time
	Balances []BalanceSnapshot
}

// Push records one snapshot per member for the day of req.Time. Earlier
// snapshots from the same day are replaced so re-running a sync twice a
// day doesn't double up the series.
func (s Store) Push(ctx context.Context, req PushRequest) error {
	ctx, span := tracer.Start(ctx, "Push")
	defer span.End()

	span.SetAttributes(attribute.Int("balances", len(req.Balances)))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	startOfToday := time.Date(req.Time.Year(), req.Time.Month(), req.Time.Day(), 0, 0, 0, 0, timezone.Location).Unix()
	startOfTommorow := time.Date(req.Time.Year(), req.Time.Month(), req.Time.Day()+1, 0, 0, 0, 0, timezone.Location).Unix()

	for _, balance := range req.Balances {
		err := txqry.DeleteBalanceSnapshotsIn(ctx, db.DeleteBalanceSnapshotsInParams{
			MemberID: balance.MemberId,
			After:    startOfToday,
			Before:   startOfTommorow,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		err = txqry.CreateBalanceSnapshot(ctx, db.CreateBalanceSnapshotParams{
			MemberID: balance.MemberId,
			Time:     req.Time.Unix(),
			Points:   balance.Points,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	return tx.Commit()
}

type SeriesPoint struct {
	Time   time.Time `json:"time"`
	Points int64     `json:"points"`
}

// Series returns a member's balance over time, oldest first.
func (s Store) Series(ctx context.Context, memberId string) ([]SeriesPoint, error) {
	ctx, span := tracer.Start(ctx, "Series")
	defer span.End()

	rows, err := s.qry.GetBalanceSnapshots(ctx, memberId)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	series := make([]SeriesPoint, len(rows))
	for i, row := range rows {
		series[i] = SeriesPoint{
			Time:   time.Unix(row.Time, 0),
			Points: row.Points,
		}
	}
	return series, nil
}

type HistoryEntry struct {
	MemberId     string    `json:"member_id"`
	Date         time.Time `json:"date"`
	Action       string    `json:"action"`
	PointsChange int64     `json:"points_change"`
	Description  string    `json:"description"`
}

// AppendHistory saves ledger entries, silently skipping entries that
// are already stored. The platform returns overlapping pages between
// runs so this gets called with mostly known entries.
func (s Store) AppendHistory(ctx context.Context, entries []HistoryEntry) error {
	ctx, span := tracer.Start(ctx, "AppendHistory")
	defer span.End()

	span.SetAttributes(attribute.Int("entries", len(entries)))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	for _, entry := range entries {
		err := txqry.CreateHistoryEntry(ctx, db.CreateHistoryEntryParams{
			MemberID:     entry.MemberId,
			Time:         entry.Date.Unix(),
			Action:       entry.Action,
			PointsChange: entry.PointsChange,
			Description:  entry.Description,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	return tx.Commit()
}

// History pages through a member's ledger, newest first, and reports
// the total entry count for pagination.
func (s Store) History(ctx context.Context, memberId string, page, pageSize int) ([]HistoryEntry, int64, error) {
	ctx, span := tracer.Start(ctx, "History")
	defer span.End()

	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}

	rows, err := s.qry.GetHistoryEntries(ctx, db.GetHistoryEntriesParams{
		MemberID: memberId,
		Limit:    int64(pageSize),
		Offset:   int64((page - 1) * pageSize),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, err
	}
	total, err := s.qry.CountHistoryEntries(ctx, memberId)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, err
	}

	entries := make([]HistoryEntry, len(rows))
	for i, row := range rows {
		entries[i] = HistoryEntry{
			MemberId:     row.MemberID,
			Date:         time.Unix(row.Time, 0),
			Action:       row.Action,
			PointsChange: row.PointsChange,
			Description:  row.Description,
		}
	}
	return entries, total, nil
}
