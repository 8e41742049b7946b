package server

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"filecask/internal/blobstore"
	"filecask/internal/store"
)

const (
	apiTokenEnvKey    = "FILECASK_API_TOKEN"
	adminTokenEnvKey  = "FILECASK_ADMIN_TOKEN"
	allowRemoteEnvKey = "FILECASK_ALLOW_REMOTE"
	userHeader        = "X-Filecask-User"
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 10 * time.Minute
	writeTimeout      = 10 * time.Minute
	idleTimeout       = 60 * time.Second
)

// Options tunes server behaviour beyond the required collaborators.
type Options struct {
	MaxUploadBytes    int64
	RateLimitOps      int
	RateLimitWindow   time.Duration
	DefaultQuotaBytes int64
}

// Server wraps HTTP handlers for the filecask API.
type Server struct {
	addr    string
	store   *store.Store
	blobs   blobstore.BlobStore
	service *FileService
	logger  *slog.Logger

	apiToken   string
	adminToken string
	limiter    *uploadRateLimiter

	defaultQuotaBytes int64
}

// New creates a new server instance.
func New(addr string, st *store.Store, blobs blobstore.BlobStore, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:              addr,
		store:             st,
		blobs:             blobs,
		service:           NewFileService(st, blobs, logger, opts.MaxUploadBytes),
		logger:            logger,
		apiToken:          strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		adminToken:        strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
		limiter:           newUploadRateLimiter(opts.RateLimitOps, opts.RateLimitWindow),
		defaultQuotaBytes: opts.DefaultQuotaBytes,
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log().Info("starting server", "addr", s.addr, "algorithm", s.blobs.Algorithm())
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return server.ListenAndServe()
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// actor extracts the caller identity from the request. Identity is
// asserted by the fronting proxy via a trusted header; this server only
// validates its shape.
func (s *Server) actor(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(userHeader))
}

// requireAPIToken enforces the bearer token when one is configured.
func (s *Server) requireAPIToken(w http.ResponseWriter, r *http.Request) bool {
	return s.requireToken(w, r, s.apiToken)
}

// requireAdminToken guards the admin surface. With no admin token
// configured the admin API falls back to the regular API token.
func (s *Server) requireAdminToken(w http.ResponseWriter, r *http.Request) bool {
	token := s.adminToken
	if token == "" {
		token = s.apiToken
	}
	return s.requireToken(w, r, token)
}

func (s *Server) requireToken(w http.ResponseWriter, r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	presented := bearerToken(r)
	if presented != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
		return true
	}
	s.writeErrorReq(w, r, http.StatusUnauthorized, apiError{
		status:  http.StatusUnauthorized,
		code:    "unauthorized",
		errCode: ErrCodeUnauthorized,
		err:     fmt.Errorf("unauthorized"),
	})
	return false
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}

// allowMutation applies the per-user rate limit to write operations.
func (s *Server) allowMutation(w http.ResponseWriter, r *http.Request, actor string) bool {
	if s.limiter.Allow(actor, time.Now()) {
		return true
	}
	s.writeErrorReq(w, r, http.StatusTooManyRequests,
		rateLimited(fmt.Errorf("too many requests for %s", actor)))
	return false
}
