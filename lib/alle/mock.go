package alle

import (
	"context"
	"sort"
	"strings"
	"time"

	"allepoints-backend/lib/phone"
	"allepoints-backend/lib/timezone"
)

// Dataset is an in-memory copy of what the platform knows: the member
// roster, everyone's current balance and the action ledger behind it.
type Dataset struct {
	Members []Member
	Points  map[string]Points
	History map[string][]HistoryEntry
}

func days(n int) time.Duration {
	return time.Hour * 24 * time.Duration(n)
}

// MockDataset is the builtin demo roster used when no platform
// credentials are configured. Balances agree with the sum of each
// member's history so sync runs against it behave like the real thing.
func MockDataset() *Dataset {
	now := timezone.Now()
	expJohn := now.Add(days(180))
	expJane := now.Add(days(60))
	expAlice := now.Add(days(20))
	expCharlie := now.Add(days(365))

	members := []Member{
		{
			Id:        "1001",
			Name:      "John Doe",
			Phone:     "555-123-4567",
			Email:     "john.doe@example.com",
			CreatedAt: now.Add(-days(400)),
			UpdatedAt: now.Add(-days(2)),
		},
		{
			Id:        "1002",
			Name:      "Jane Smith",
			Phone:     "555-234-5678",
			Email:     "jane.smith@example.com",
			CreatedAt: now.Add(-days(300)),
			UpdatedAt: now.Add(-days(45)),
		},
		{
			Id:        "1003",
			Name:      "Bob Johnson",
			Phone:     "555-345-6789",
			Email:     "bob.johnson@example.com",
			CreatedAt: now.Add(-days(250)),
			UpdatedAt: now.Add(-days(100)),
		},
		{
			Id:        "1004",
			Name:      "Alice Brown",
			Phone:     "555-456-7890",
			Email:     "alice.brown@example.com",
			CreatedAt: now.Add(-days(120)),
			UpdatedAt: now.Add(-days(60)),
		},
		{
			Id:        "1005",
			Name:      "Charlie Davis",
			Phone:     "555-567-8901",
			Email:     "charlie.davis@example.com",
			CreatedAt: now.Add(-days(500)),
			UpdatedAt: now.Add(-days(30)),
		},
	}

	points := map[string]Points{
		"1001": {MemberId: "1001", Points: 150, LastUpdated: now.Add(-days(2)), ExpirationDate: &expJohn},
		"1002": {MemberId: "1002", Points: 75, LastUpdated: now.Add(-days(45)), ExpirationDate: &expJane},
		"1003": {MemberId: "1003", Points: 0, LastUpdated: now.Add(-days(100)), ExpirationDate: nil},
		"1004": {MemberId: "1004", Points: 200, LastUpdated: now.Add(-days(60)), ExpirationDate: &expAlice},
		"1005": {MemberId: "1005", Points: 50, LastUpdated: now.Add(-days(30)), ExpirationDate: &expCharlie},
	}

	history := map[string][]HistoryEntry{
		"1001": {
			{MemberId: "1001", Date: now.Add(-days(90)), Action: ActionEarn, PointsChange: 100, Description: "BOTOX Cosmetic treatment"},
			{MemberId: "1001", Date: now.Add(-days(30)), Action: ActionEarn, PointsChange: 100, Description: "JUVEDERM treatment"},
			{MemberId: "1001", Date: now.Add(-days(2)), Action: ActionRedeem, PointsChange: -50, Description: "Redeemed at checkout"},
		},
		"1002": {
			{MemberId: "1002", Date: now.Add(-days(45)), Action: ActionEarn, PointsChange: 75, Description: "BOTOX Cosmetic treatment"},
		},
		"1003": {
			{MemberId: "1003", Date: now.Add(-days(200)), Action: ActionEarn, PointsChange: 60, Description: "CoolSculpting session"},
			{MemberId: "1003", Date: now.Add(-days(100)), Action: ActionRedeem, PointsChange: -60, Description: "Redeemed at checkout"},
		},
		"1004": {
			{MemberId: "1004", Date: now.Add(-days(60)), Action: ActionEarn, PointsChange: 200, Description: "JUVEDERM treatment"},
		},
		"1005": {
			{MemberId: "1005", Date: now.Add(-days(400)), Action: ActionEarn, PointsChange: 100, Description: "BOTOX Cosmetic treatment"},
			{MemberId: "1005", Date: now.Add(-days(30)), Action: ActionExpire, PointsChange: -50, Description: "Points expired"},
		},
	}

	return &Dataset{
		Members: members,
		Points:  points,
		History: history,
	}
}

// applies the platform's pagination rules to any slice
func Paginate[T any](items []T, page, perPage int) ([]T, Pagination) {
	if perPage <= 0 {
		perPage = listPageSize
	}
	if perPage > 100 {
		perPage = 100
	}
	if page <= 0 {
		page = 1
	}

	total := len(items)
	totalPages := (total + perPage - 1) / perPage
	if totalPages == 0 {
		totalPages = 1
	}

	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	return items[start:end], Pagination{
		Page:         page,
		PerPage:      perPage,
		TotalPages:   totalPages,
		TotalMembers: total,
	}
}

// StaticClient serves a Dataset through the same operations as Client,
// for demo mode and tests that shouldn't touch the network.
type StaticClient struct {
	data *Dataset
}

func NewStaticClient(data *Dataset) StaticClient {
	return StaticClient{data: data}
}

func (c StaticClient) ListMembers(ctx context.Context, page, perPage int) (MembersPage, error) {
	items, pagination := Paginate(c.data.Members, page, perPage)
	return MembersPage{Members: items, Pagination: pagination}, nil
}

func (c StaticClient) ListAllMembers(ctx context.Context) ([]Member, error) {
	out := make([]Member, len(c.data.Members))
	copy(out, c.data.Members)
	return out, nil
}

func (c StaticClient) GetMember(ctx context.Context, id string) (Member, error) {
	for _, m := range c.data.Members {
		if m.Id == id {
			return m, nil
		}
	}
	return Member{}, ErrNotFound
}

func (c StaticClient) SearchMembers(ctx context.Context, query string) ([]Member, error) {
	queryDigits := phone.Digits(query)
	queryLower := strings.ToLower(query)

	var out []Member
	for _, m := range c.data.Members {
		if queryDigits != "" && strings.Contains(phone.Digits(m.Phone), queryDigits) {
			out = append(out, m)
			continue
		}
		if queryLower != "" &&
			(strings.Contains(strings.ToLower(m.Name), queryLower) ||
				strings.Contains(strings.ToLower(m.Email), queryLower)) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c StaticClient) GetMemberPoints(ctx context.Context, id string) (Points, error) {
	_, err := c.GetMember(ctx, id)
	if err != nil {
		return Points{}, err
	}
	points, ok := c.data.Points[id]
	if !ok {
		return Points{MemberId: id, LastUpdated: timezone.Now()}, nil
	}
	return points, nil
}

func (c StaticClient) GetPointsHistory(ctx context.Context, id string, page, perPage int) (HistoryPage, error) {
	_, err := c.GetMember(ctx, id)
	if err != nil {
		return HistoryPage{}, err
	}

	entries := make([]HistoryEntry, len(c.data.History[id]))
	copy(entries, c.data.History[id])
	// newest first, same as the platform
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})

	items, pagination := Paginate(entries, page, perPage)
	return HistoryPage{History: items, Pagination: pagination}, nil
}
