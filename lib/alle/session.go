package alle

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"allepoints-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

var LoginFailed = fmt.Errorf("Failed to login to your Alle account.")

type SessionOptions struct {
	// the business portal, e.g. https://business.alle.com
	BusinessUrl string
	Username    string
	Password    string
}

// holds a bearer token obtained by logging into the business portal
// with a username and password, re-logging in shortly before expiry
type session struct {
	http *resty.Client
	opts SessionOptions

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newSession(opts SessionOptions) (*session, error) {
	if opts.Username == "" || opts.Password == "" {
		return nil, fmt.Errorf("both a username and a password are required")
	}
	baseUrl, err := url.Parse(opts.BusinessUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BusinessUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", userAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "lib/alle/session")

	return &session{
		http: client,
		opts: opts,
	}, nil
}

// a client that authenticates with the business portal's username and
// password instead of an api key. the login happens on first use.
func NewSessionClient(opts ClientOptions, sessionOpts SessionOptions) (*Client, error) {
	c, err := newBareClient(opts)
	if err != nil {
		return nil, err
	}
	s, err := newSession(sessionOpts)
	if err != nil {
		return nil, err
	}
	c.session = s

	c.Http.OnBeforeRequest(func(cli *resty.Client, req *resty.Request) error {
		token, err := s.ensureToken(req.Context())
		if err != nil {
			return err
		}
		req.SetAuthToken(token)
		return nil
	})
	// a 401 mid-run means the portal dropped our session, force a
	// fresh login and let the retry take care of the rest
	c.Http.AddRetryCondition(func(res *resty.Response, err error) bool {
		if res != nil && res.StatusCode() == 401 {
			s.invalidate()
			return true
		}
		return false
	})

	return c, nil
}

func (s *session) invalidate() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

func (s *session) ensureToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiresAt.Add(-time.Minute)) {
		return s.token, nil
	}
	err := s.login(ctx)
	if err != nil {
		return "", err
	}
	return s.token, nil
}

func (s *session) login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session:login")
	defer span.End()

	res, err := s.http.R().
		SetContext(ctx).
		Get("/login")
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse login page html")
		return err
	}

	csrfToken := doc.Find("input[name=csrf_token]").AttrOr("value", "")
	if csrfToken == "" {
		span.SetStatus(codes.Error, "failed to find csrf token")
		return fmt.Errorf("could not find csrf token")
	}

	_, err = s.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"csrf_token": csrfToken,
			"username":   s.opts.Username,
			"password":   s.opts.Password,
		}).
		Post("/login")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return err
	}

	// the login cookie buys us a bearer token for the json api
	res, err = s.http.R().
		SetContext(ctx).
		Post("/api/auth/session")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to exchange session cookie")
		return err
	}
	if res.StatusCode() == 401 || res.StatusCode() == 403 {
		span.SetStatus(codes.Error, LoginFailed.Error())
		return LoginFailed
	}

	var body struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	err = decode(res, &body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode session token")
		return err
	}
	if body.Token == "" {
		span.SetStatus(codes.Error, "empty session token")
		return LoginFailed
	}

	s.token = body.Token
	s.expiresAt = body.ExpiresAt
	return nil
}
