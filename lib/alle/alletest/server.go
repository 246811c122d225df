// Package alletest runs a local stand-in for the Alle platform: the
// member endpoints backed by an alle.Dataset plus the business portal
// login handshake, so client and collector tests never leave the
// process.
package alletest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"allepoints-backend/lib/alle"

	"github.com/mazen160/go-random"
)

type Options struct {
	// bearer token accepted on /api/v1, empty disables key auth
	ApiKey string
	// portal credentials, empty disables the login flow
	Username string
	Password string
	// member ids that always respond 403
	ForbiddenIds []string
	// respond 429 to this many /api/v1 requests before recovering
	Fail429 int
}

type Server struct {
	Data *alle.Dataset

	opts   Options
	static alle.StaticClient
	mux    *http.ServeMux

	requests  atomic.Int64
	rateLimit atomic.Int64

	mu         sync.Mutex
	csrfTokens map[string]bool
	cookies    map[string]bool
	sessions   map[string]time.Time
}

func NewServer(data *alle.Dataset, opts Options) *Server {
	s := &Server{
		Data:       data,
		opts:       opts,
		static:     alle.NewStaticClient(data),
		mux:        http.NewServeMux(),
		csrfTokens: map[string]bool{},
		cookies:    map[string]bool{},
		sessions:   map[string]time.Time{},
	}
	s.rateLimit.Store(int64(opts.Fail429))

	s.mux.HandleFunc("GET /login", s.handleLoginPage)
	s.mux.HandleFunc("POST /login", s.handleLoginSubmit)
	s.mux.HandleFunc("POST /api/auth/session", s.handleSessionExchange)
	s.mux.HandleFunc("GET /api/v1/members", s.api(s.handleListMembers))
	s.mux.HandleFunc("GET /api/v1/members/{id}", s.api(s.handleGetMember))
	s.mux.HandleFunc("GET /api/v1/members/{id}/points", s.api(s.handleGetPoints))
	s.mux.HandleFunc("GET /api/v1/members/{id}/points/history", s.api(s.handleGetHistory))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// RequestCount reports how many /api/v1 requests the fake has served,
// successful or not.
func (s *Server) RequestCount() int64 {
	return s.requests.Load()
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.opts.ApiKey == "" && s.opts.Username == "" {
		return true
	}

	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		return false
	}
	token := auth[len(prefix):]

	if s.opts.ApiKey != "" && token == s.opts.ApiKey {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.sessions[token]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(s.sessions, token)
		return false
	}
	return true
}

func (s *Server) api(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)

		if s.rateLimit.Add(-1) >= 0 {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		if !s.authorized(r) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing access token")
			return
		}
		if id := r.PathValue("id"); id != "" {
			for _, forbidden := range s.opts.ForbiddenIds {
				if id == forbidden {
					writeError(w, http.StatusForbidden, "PERMISSION_DENIED", "this member is not visible to your account")
					return
				}
			}
		}
		next(w, r)
	}
}

const loginPageTemplate = `<!DOCTYPE html>
<html>
<head><title>Alle for Business</title></head>
<body>
<form method="post" action="/login">
<input type="hidden" name="csrf_token" value="%s">
<input type="text" name="username">
<input type="password" name="password">
<button type="submit">Log in</button>
</form>
</body>
</html>`

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	csrf, err := random.String(16)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.mu.Lock()
	s.csrfTokens[csrf] = true
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, loginPageTemplate, csrf)
}

func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	err := r.ParseForm()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	csrf := r.PostFormValue("csrf_token")

	s.mu.Lock()
	validCsrf := s.csrfTokens[csrf]
	delete(s.csrfTokens, csrf)
	s.mu.Unlock()

	if !validCsrf ||
		r.PostFormValue("username") != s.opts.Username ||
		r.PostFormValue("password") != s.opts.Password {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `<html><body><div class="login-error">Incorrect username or password.</div></body></html>`)
		return
	}

	cookie, err := random.String(24)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.mu.Lock()
	s.cookies[cookie] = true
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:  "alle_session",
		Value: cookie,
		Path:  "/",
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleSessionExchange(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("alle_session")
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no session cookie")
		return
	}
	s.mu.Lock()
	validCookie := s.cookies[cookie.Value]
	s.mu.Unlock()
	if !validCookie {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unknown session cookie")
		return
	}

	token, err := random.String(32)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	expiresAt := time.Now().Add(time.Minute * 30)

	s.mu.Lock()
	s.sessions[token] = expiresAt
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"token":      token,
		"expires_at": expiresAt,
	})
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return page, perPage
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)

	query := r.URL.Query().Get("q")
	if query != "" {
		matches, _ := s.static.SearchMembers(r.Context(), query)
		items, pagination := alle.Paginate(matches, page, perPage)
		writeJSON(w, alle.MembersPage{Members: items, Pagination: pagination})
		return
	}

	result, _ := s.static.ListMembers(r.Context(), page, perPage)
	writeJSON(w, result)
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	member, err := s.static.GetMember(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no member with that id")
		return
	}
	writeJSON(w, member)
}

func (s *Server) handleGetPoints(w http.ResponseWriter, r *http.Request) {
	points, err := s.static.GetMemberPoints(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no member with that id")
		return
	}
	writeJSON(w, points)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)
	history, err := s.static.GetPointsHistory(r.Context(), r.PathValue("id"), page, perPage)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no member with that id")
		return
	}
	writeJSON(w, history)
}
