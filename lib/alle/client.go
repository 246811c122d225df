package alle

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"allepoints-backend/lib/restyutil"
	"allepoints-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/alle")

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	session *session
}

type ClientOptions struct {
	BaseUrl string
	ApiKey  string
	// the polite pause between consecutive requests, drawn uniformly
	// from [MinDelay, MaxDelay]. zero disables the throttle.
	MinDelay time.Duration
	MaxDelay time.Duration
	// when set, every request/response pair is dumped to this
	// directory for scraper debugging
	DebugDumpDir string
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.ApiKey == "" {
		return nil, fmt.Errorf("an api key is required, use NewSessionClient for username/password access")
	}
	c, err := newBareClient(opts)
	if err != nil {
		return nil, err
	}
	c.Http.SetAuthToken(opts.ApiKey)
	return c, nil
}

func newBareClient(opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if opts.MaxDelay < opts.MinDelay {
		return nil, fmt.Errorf("max delay %s is below min delay %s", opts.MaxDelay, opts.MinDelay)
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)

	client.SetHeader("user-agent", userAgent)
	client.SetHeader("accept", "application/json")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	client.SetRetryCount(3)
	client.SetRetryWaitTime(time.Second)
	client.SetRetryMaxWaitTime(time.Second * 30)
	client.AddRetryCondition(func(res *resty.Response, err error) bool {
		if res == nil {
			return false
		}
		return res.StatusCode() == 429 || res.StatusCode() >= 500
	})
	client.SetRetryAfter(func(cli *resty.Client, res *resty.Response) (time.Duration, error) {
		retryAfter := res.Header().Get("Retry-After")
		if retryAfter != "" {
			seconds, err := strconv.Atoi(retryAfter)
			if err == nil {
				return time.Duration(seconds) * time.Second, nil
			}
		}
		return time.Second, nil
	})

	if opts.MaxDelay > 0 {
		client.OnBeforeRequest(throttle(opts.MinDelay, opts.MaxDelay))
	}

	telemetry.InstrumentResty(client, "lib/alle/http")
	if opts.DebugDumpDir != "" {
		restyutil.InstrumentClient(client, nil, restyutil.NewFilesystemOutput(opts.DebugDumpDir))
	}

	return &Client{
		BaseUrl: baseUrl,
		Http:    client,
	}, nil
}

// waits out a randomized delay before every request so a full member
// sweep doesn't hammer the platform
func throttle(min, max time.Duration) resty.RequestMiddleware {
	return func(cli *resty.Client, req *resty.Request) error {
		delay := min
		if max > min {
			delay = min + time.Duration(rand.Int63n(int64(max-min)))
		}
		select {
		case <-time.After(delay):
			return nil
		case <-req.Context().Done():
			return req.Context().Err()
		}
	}
}

// turns a non-2xx response into a *StatusError carrying the platform's
// error envelope, otherwise unmarshals the body into `out`
func decode(res *resty.Response, out any) error {
	if res.IsError() {
		statusErr := &StatusError{StatusCode: res.StatusCode()}

		var body apiErrorBody
		err := json.Unmarshal(res.Body(), &body)
		if err == nil {
			statusErr.Code = body.Error.Code
			statusErr.Message = body.Error.Message
		}

		retryAfter := res.Header().Get("Retry-After")
		if retryAfter != "" {
			seconds, err := strconv.Atoi(retryAfter)
			if err == nil {
				statusErr.RetryAfter = time.Duration(seconds) * time.Second
			}
		}
		return statusErr
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(res.Body(), out)
}

func (c *Client) ListMembers(ctx context.Context, page, perPage int) (MembersPage, error) {
	ctx, span := tracer.Start(ctx, "client:ListMembers")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		SetQueryParam("page", strconv.Itoa(page)).
		SetQueryParam("per_page", strconv.Itoa(perPage)).
		Get("/api/v1/members")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch member list")
		return MembersPage{}, err
	}

	var out MembersPage
	err = decode(res, &out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode member list")
		return MembersPage{}, err
	}
	return out, nil
}

const listPageSize = 50

func (c *Client) ListAllMembers(ctx context.Context) ([]Member, error) {
	ctx, span := tracer.Start(ctx, "client:ListAllMembers")
	defer span.End()

	var members []Member
	page := 1
	for {
		result, err := c.ListMembers(ctx, page, listPageSize)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		members = append(members, result.Members...)

		if len(result.Members) == 0 || page >= result.Pagination.TotalPages {
			break
		}
		page++
	}
	return members, nil
}

func (c *Client) GetMember(ctx context.Context, id string) (Member, error) {
	ctx, span := tracer.Start(ctx, "client:GetMember")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get("/api/v1/members/" + url.PathEscape(id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch member")
		return Member{}, err
	}

	var out Member
	err = decode(res, &out)
	if err != nil {
		span.SetStatus(codes.Error, "failed to decode member")
		return Member{}, err
	}
	return out, nil
}

func (c *Client) SearchMembers(ctx context.Context, query string) ([]Member, error) {
	ctx, span := tracer.Start(ctx, "client:SearchMembers")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetQueryParam("per_page", strconv.Itoa(listPageSize)).
		Get("/api/v1/members")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to search members")
		return nil, err
	}

	var out MembersPage
	err = decode(res, &out)
	if err != nil {
		span.SetStatus(codes.Error, "failed to decode search results")
		return nil, err
	}
	return out.Members, nil
}

func (c *Client) GetMemberPoints(ctx context.Context, id string) (Points, error) {
	ctx, span := tracer.Start(ctx, "client:GetMemberPoints")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get("/api/v1/members/" + url.PathEscape(id) + "/points")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch member points")
		return Points{}, err
	}

	var out Points
	err = decode(res, &out)
	if err != nil {
		span.SetStatus(codes.Error, "failed to decode member points")
		return Points{}, err
	}
	return out, nil
}

func (c *Client) GetPointsHistory(ctx context.Context, id string, page, perPage int) (HistoryPage, error) {
	ctx, span := tracer.Start(ctx, "client:GetPointsHistory")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		SetQueryParam("page", strconv.Itoa(page)).
		SetQueryParam("per_page", strconv.Itoa(perPage)).
		Get("/api/v1/members/" + url.PathEscape(id) + "/points/history")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch points history")
		return HistoryPage{}, err
	}

	var out HistoryPage
	err = decode(res, &out)
	if err != nil {
		span.SetStatus(codes.Error, "failed to decode points history")
		return HistoryPage{}, err
	}
	return out, nil
}
