package directory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"allepoints-backend/lib/phone"
	"allepoints-backend/lib/timezone"
	"allepoints-backend/services/directory/db"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("services/directory")

var ErrMemberNotFound = fmt.Errorf("no member with that id")

// Service is the queryable member roster: the latest sync of every
// member the practice can see, plus the record of past sync runs.
type Service struct {
	db  *sql.DB
	qry *db.Queries
}

func NewService(database *sql.DB) Service {
	return Service{
		db:  database,
		qry: db.New(database),
	}
}

type Member struct {
	Id             string     `json:"id"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone"`
	Email          string     `json:"email"`
	Points         int64      `json:"points"`
	PointsUpdated  time.Time  `json:"points_updated_at"`
	PointsExpireAt *time.Time `json:"points_expire_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func memberFromRow(row db.Member) Member {
	m := Member{
		Id:            row.ID,
		Name:          row.Name,
		Phone:         row.Phone,
		Email:         row.Email,
		Points:        row.Points,
		PointsUpdated: time.Unix(row.PointsUpdatedAt, 0),
		CreatedAt:     time.Unix(row.CreatedAt, 0),
		UpdatedAt:     time.Unix(row.UpdatedAt, 0),
	}
	if row.PointsExpireAt.Valid {
		expireAt := time.Unix(row.PointsExpireAt.Int64, 0)
		m.PointsExpireAt = &expireAt
	}
	return m
}

type PointsUpdate struct {
	Points    int64
	UpdatedAt time.Time
	ExpireAt  *time.Time
}

type MemberUpsert struct {
	Id        string
	Name      string
	Phone     string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
	// nil when the balance could not be fetched this run, the
	// previously stored balance is kept
	Points *PointsUpdate
}

type UpsertRequest struct {
	SyncTime time.Time
	Members  []MemberUpsert
}

// UpsertMembers replaces the roster with the given sync result in one
// transaction. Members absent from the request are deleted, members
// without a points update keep their old balance.
func (s Service) UpsertMembers(ctx context.Context, req UpsertRequest) error {
	ctx, span := tracer.Start(ctx, "UpsertMembers")
	defer span.End()

	span.SetAttributes(attribute.Int("members", len(req.Members)))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	syncedAt := req.SyncTime.Unix()
	for _, m := range req.Members {
		err := txqry.UpsertMemberProfile(ctx, db.UpsertMemberProfileParams{
			ID:           m.Id,
			Name:         m.Name,
			Phone:        m.Phone,
			PhoneDigits:  phone.Digits(m.Phone),
			Email:        m.Email,
			CreatedAt:    m.CreatedAt.Unix(),
			UpdatedAt:    m.UpdatedAt.Unix(),
			LastSyncedAt: syncedAt,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		if m.Points == nil {
			continue
		}
		expireAt := sql.NullInt64{}
		if m.Points.ExpireAt != nil {
			expireAt = sql.NullInt64{Int64: m.Points.ExpireAt.Unix(), Valid: true}
		}
		err = txqry.UpdateMemberPoints(ctx, db.UpdateMemberPointsParams{
			Points:          m.Points.Points,
			PointsUpdatedAt: m.Points.UpdatedAt.Unix(),
			PointsExpireAt:  expireAt,
			ID:              m.Id,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	// an empty roster is far more likely a bad sync than a practice
	// with zero members, keep what we have
	if len(req.Members) > 0 {
		err = txqry.DeleteMembersNotSyncedSince(ctx, syncedAt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	return tx.Commit()
}

func (s Service) GetMember(ctx context.Context, id string) (Member, error) {
	ctx, span := tracer.Start(ctx, "GetMember")
	defer span.End()

	row, err := s.qry.GetMember(ctx, id)
	if err == sql.ErrNoRows {
		return Member{}, ErrMemberNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Member{}, err
	}
	return memberFromRow(row), nil
}

type Pagination struct {
	Page         int `json:"page"`
	PageSize     int `json:"page_size"`
	TotalPages   int `json:"total_pages"`
	TotalMembers int `json:"total_members"`
}

type ListRequest struct {
	MinPoints int64
	Page      int
	PageSize  int
}

type ListResult struct {
	Members    []Member   `json:"members"`
	Pagination Pagination `json:"pagination"`
}

const defaultPageSize = 50
const maxPageSize = 100

func normalizePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func (s Service) ListMembers(ctx context.Context, req ListRequest) (ListResult, error) {
	ctx, span := tracer.Start(ctx, "ListMembers")
	defer span.End()

	page, pageSize := normalizePage(req.Page, req.PageSize)

	rows, err := s.qry.ListMembers(ctx, db.ListMembersParams{
		Points: req.MinPoints,
		Limit:  int64(pageSize),
		Offset: int64((page - 1) * pageSize),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ListResult{}, err
	}
	count, err := s.qry.CountMembers(ctx, req.MinPoints)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ListResult{}, err
	}

	members := make([]Member, len(rows))
	for i, row := range rows {
		members[i] = memberFromRow(row)
	}

	totalPages := (int(count) + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	return ListResult{
		Members: members,
		Pagination: Pagination{
			Page:         page,
			PageSize:     pageSize,
			TotalPages:   totalPages,
			TotalMembers: int(count),
		},
	}, nil
}

// PaginateMembers windows an already loaded member list the same way
// ListMembers pages the database.
func PaginateMembers(members []Member, page, pageSize int) ListResult {
	page, pageSize = normalizePage(page, pageSize)

	totalPages := (len(members) + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	start := (page - 1) * pageSize
	if start > len(members) {
		start = len(members)
	}
	end := start + pageSize
	if end > len(members) {
		end = len(members)
	}

	window := members[start:end]
	if window == nil {
		// an empty page still serializes as a list
		window = []Member{}
	}

	return ListResult{
		Members: window,
		Pagination: Pagination{
			Page:         page,
			PageSize:     pageSize,
			TotalPages:   totalPages,
			TotalMembers: len(members),
		},
	}
}

// anything below this similarity is considered noise, not a match
const searchThreshold = 0.8

// SearchMembers looks the query up as a phone number first, then falls
// back to fuzzy matching on names and emails, best matches first.
func (s Service) SearchMembers(ctx context.Context, query string) ([]Member, error) {
	ctx, span := tracer.Start(ctx, "SearchMembers")
	defer span.End()

	rows, err := s.qry.GetAllMembers(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	queryDigits := phone.Digits(query)
	if queryDigits != "" {
		var out []Member
		for _, row := range rows {
			if strings.Contains(row.PhoneDigits, queryDigits) {
				out = append(out, memberFromRow(row))
			}
		}
		if len(out) > 0 {
			return out, nil
		}
	}

	queryLower := strings.ToLower(strings.TrimSpace(query))
	if queryLower == "" {
		return nil, nil
	}

	type scored struct {
		member Member
		score  float64
	}
	var matches []scored
	for _, row := range rows {
		name := strings.ToLower(row.Name)
		email := strings.ToLower(row.Email)

		score := matchr.JaroWinkler(queryLower, name, false)
		if emailScore := matchr.JaroWinkler(queryLower, email, false); emailScore > score {
			score = emailScore
		}
		// an exact substring beats any fuzzy score
		if strings.Contains(name, queryLower) || strings.Contains(email, queryLower) {
			score = 1
		}

		if score < searchThreshold {
			continue
		}
		matches = append(matches, scored{member: memberFromRow(row), score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	out := make([]Member, len(matches))
	for i, m := range matches {
		out[i] = m.member
	}
	return out, nil
}

type Summary struct {
	TotalMembers      int64   `json:"total_members"`
	MembersWithPoints int64   `json:"members_with_points"`
	TotalPoints       int64   `json:"total_points"`
	AveragePoints     float64 `json:"average_points"`
	MaxPoints         int64   `json:"max_points"`
	ExpiringSoon      int64   `json:"expiring_soon"`
}

// Summary aggregates the whole roster. The average is over every
// member, including the ones at zero.
func (s Service) Summary(ctx context.Context, expiringWithin time.Duration) (Summary, error) {
	ctx, span := tracer.Start(ctx, "Summary")
	defer span.End()

	row, err := s.qry.GetSummary(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Summary{}, err
	}

	cutoff := timezone.Now().Add(expiringWithin).Unix()
	expiring, err := s.qry.CountExpiringBefore(ctx, sql.NullInt64{Int64: cutoff, Valid: true})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Summary{}, err
	}

	summary := Summary{
		TotalMembers:      row.TotalMembers,
		MembersWithPoints: row.MembersWithPoints,
		TotalPoints:       row.TotalPoints,
		MaxPoints:         row.MaxPoints,
		ExpiringSoon:      expiring,
	}
	if row.TotalMembers > 0 {
		summary.AveragePoints = float64(row.TotalPoints) / float64(row.TotalMembers)
	}
	return summary, nil
}

// ExpiringMembers lists members whose positive balance expires within
// the given window, soonest first.
func (s Service) ExpiringMembers(ctx context.Context, within time.Duration) ([]Member, error) {
	ctx, span := tracer.Start(ctx, "ExpiringMembers")
	defer span.End()

	cutoff := timezone.Now().Add(within).Unix()
	rows, err := s.qry.ListExpiringBefore(ctx, sql.NullInt64{Int64: cutoff, Valid: true})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	members := make([]Member, len(rows))
	for i, row := range rows {
		members[i] = memberFromRow(row)
	}
	return members, nil
}

const (
	SyncStatusOk      = "ok"
	SyncStatusPartial = "partial"
	SyncStatusFailed  = "failed"
)

type SyncRun struct {
	Id            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	MembersSeen   int64     `json:"members_seen"`
	MembersFailed int64     `json:"members_failed"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
}

func (s Service) RecordSyncRun(ctx context.Context, run SyncRun) (string, error) {
	ctx, span := tracer.Start(ctx, "RecordSyncRun")
	defer span.End()

	if run.Id == "" {
		run.Id = uuid.NewString()
	}
	err := s.qry.CreateSyncRun(ctx, db.CreateSyncRunParams{
		ID:            run.Id,
		StartedAt:     run.StartedAt.Unix(),
		FinishedAt:    run.FinishedAt.Unix(),
		MembersSeen:   run.MembersSeen,
		MembersFailed: run.MembersFailed,
		Status:        run.Status,
		Error:         run.Error,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return run.Id, nil
}

func (s Service) LastSyncRun(ctx context.Context) (SyncRun, bool, error) {
	ctx, span := tracer.Start(ctx, "LastSyncRun")
	defer span.End()

	row, err := s.qry.GetLastSyncRun(ctx)
	if err == sql.ErrNoRows {
		return SyncRun{}, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return SyncRun{}, false, err
	}
	return SyncRun{
		Id:            row.ID,
		StartedAt:     time.Unix(row.StartedAt, 0),
		FinishedAt:    time.Unix(row.FinishedAt, 0),
		MembersSeen:   row.MembersSeen,
		MembersFailed: row.MembersFailed,
		Status:        row.Status,
		Error:         row.Error,
	}, true, nil
}
