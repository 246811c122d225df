package alle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Member struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Points struct {
	MemberId       string      `json:"member_id"`
	Points         PointsValue `json:"points"`
	LastUpdated    time.Time   `json:"last_updated"`
	ExpirationDate *time.Time  `json:"expiration_date"`
}

type HistoryEntry struct {
	MemberId     string      `json:"member_id"`
	Date         time.Time   `json:"date"`
	Action       string      `json:"action"`
	PointsChange PointsValue `json:"points_change"`
	Description  string      `json:"description"`
}

type Pagination struct {
	Page         int `json:"page"`
	PerPage      int `json:"per_page"`
	TotalPages   int `json:"total_pages"`
	TotalMembers int `json:"total_members"`
}

type MembersPage struct {
	Members    []Member   `json:"members"`
	Pagination Pagination `json:"pagination"`
}

type HistoryPage struct {
	History    []HistoryEntry `json:"history"`
	Pagination Pagination     `json:"pagination"`
}

const (
	ActionEarn   = "earn"
	ActionRedeem = "redeem"
	ActionAdjust = "adjust"
	ActionExpire = "expire"
)

// collapses the verbs the platform has been seen using into the four
// actions the rest of the system understands
func NormalizeAction(action string) string {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "earn", "earned", "award", "awarded":
		return ActionEarn
	case "redeem", "redeemed", "spend", "spent":
		return ActionRedeem
	case "expire", "expired":
		return ActionExpire
	default:
		return ActionAdjust
	}
}

// a point balance as the platform reports it. balances have shown up as
// plain numbers, quoted numbers and formatted strings like "1,234", so
// parse all of them and fall back to zero instead of failing a whole
// member record.
type PointsValue int64

func (p *PointsValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		err := json.Unmarshal(data, &s)
		if err != nil {
			return err
		}
		*p = parsePoints(s)
		return nil
	}

	var n int64
	err := json.Unmarshal(data, &n)
	if err != nil {
		// a float like 150.0 still counts
		var f float64
		ferr := json.Unmarshal(data, &f)
		if ferr != nil {
			*p = 0
			return nil
		}
		n = int64(f)
	}
	*p = PointsValue(n)
	return nil
}

func (p PointsValue) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(p), 10)), nil
}

func parsePoints(s string) PointsValue {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0
		}
		return PointsValue(f)
	}
	return PointsValue(n)
}

var (
	ErrUnauthorized = fmt.Errorf("the platform rejected our credentials")
	ErrForbidden    = fmt.Errorf("the account is not allowed to see this resource")
	ErrNotFound     = fmt.Errorf("no such resource")
	ErrRateLimited  = fmt.Errorf("the platform is rate limiting us")
)

// the error envelope every non-2xx response carries
type apiErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type StatusError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("alle: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("alle: unexpected status %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case 401:
		return ErrUnauthorized
	case 403:
		return ErrForbidden
	case 404:
		return ErrNotFound
	case 429:
		return ErrRateLimited
	}
	return nil
}
