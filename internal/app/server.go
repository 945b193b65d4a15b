// Package app wires the Campfire HTTP server from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campfirelabs/campfire/internal/platform/config"
	"github.com/campfirelabs/campfire/internal/platform/httpjson"
	"github.com/campfirelabs/campfire/internal/platform/otel"
	"github.com/campfirelabs/campfire/internal/platform/ratelimit"
	authapi "github.com/campfirelabs/campfire/internal/services/auth/api/httpapi"
	"github.com/campfirelabs/campfire/internal/services/auth/bridge"
	"github.com/campfirelabs/campfire/internal/services/auth/issuer"
	"github.com/campfirelabs/campfire/internal/services/auth/nonce"
	authmemory "github.com/campfirelabs/campfire/internal/services/auth/storage/memory"
	authredis "github.com/campfirelabs/campfire/internal/services/auth/storage/redis"
	authsqlite "github.com/campfirelabs/campfire/internal/services/auth/storage/sqlite"
	"github.com/campfirelabs/campfire/internal/services/auth/wallet"
	campaignapi "github.com/campfirelabs/campfire/internal/services/campaign/api/httpapi"
	campaignservice "github.com/campfirelabs/campfire/internal/services/campaign/service"
	campaignsqlite "github.com/campfirelabs/campfire/internal/services/campaign/storage/sqlite"
)

// Config holds the server configuration loaded from the environment.
type Config struct {
	HTTPAddr       string `env:"CAMPFIRE_HTTP_ADDR" envDefault:"localhost:8080"`
	AuthDBPath     string `env:"CAMPFIRE_AUTH_DB_PATH" envDefault:"data/campfire-auth.db"`
	CampaignDBPath string `env:"CAMPFIRE_CAMPAIGN_DB_PATH" envDefault:"data/campfire-campaign.db"`

	// ServerSecret feeds credential derivation and must stay in-process.
	ServerSecret      string `env:"CAMPFIRE_SERVER_SECRET"`
	SessionSigningKey string `env:"CAMPFIRE_SESSION_SIGNING_KEY"`

	SessionAccessTTL  time.Duration `env:"CAMPFIRE_SESSION_ACCESS_TTL" envDefault:"1h"`
	SessionRefreshTTL time.Duration `env:"CAMPFIRE_SESSION_REFRESH_TTL" envDefault:"720h"`

	// RedisAddr switches the nonce ledger and rate limiter onto a shared
	// store; single-instance deployments can leave it empty and run on
	// in-process maps.
	RedisAddr string `env:"CAMPFIRE_REDIS_ADDR"`

	// RateLimitPerHour caps state-changing requests per subject per hour.
	// Zero disables rate limiting.
	RateLimitPerHour int `env:"CAMPFIRE_RATE_LIMIT_PER_HOUR" envDefault:"120"`
}

// LoadConfig reads server configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Server hosts the Campfire HTTP service.
type Server struct {
	listener      net.Listener
	httpServer    *http.Server
	authStore     *authsqlite.Store
	campaignStore *campaignsqlite.Store
	redisClient   *redis.Client
}

// New creates a configured server listening on the configured address.
func New(cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.ServerSecret) == "" {
		return nil, fmt.Errorf("server secret is required")
	}
	if strings.TrimSpace(cfg.SessionSigningKey) == "" {
		return nil, fmt.Errorf("session signing key is required")
	}

	for _, path := range []string{cfg.AuthDBPath, cfg.CampaignDBPath} {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
			}
		}
	}

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}

	authStore, err := authsqlite.Open(cfg.AuthDBPath)
	if err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("open auth store: %w", err)
	}
	campaignStore, err := campaignsqlite.Open(cfg.CampaignDBPath)
	if err != nil {
		_ = listener.Close()
		_ = authStore.Close()
		return nil, fmt.Errorf("open campaign store: %w", err)
	}

	var redisClient *redis.Client
	var nonces = nonce.NewLedger(authmemory.NewNonceStore())
	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter()
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		nonces = nonce.NewLedger(authredis.NewNonceStore(redisClient))
		limiter = ratelimit.NewRedisLimiter(redisClient)
	}

	sessionIssuer, err := issuer.NewLocalIssuer(
		authStore,
		[]byte(cfg.SessionSigningKey),
		issuer.WithAccessTTL(cfg.SessionAccessTTL),
		issuer.WithRefreshTTL(cfg.SessionRefreshTTL),
	)
	if err != nil {
		_ = listener.Close()
		_ = authStore.Close()
		_ = campaignStore.Close()
		return nil, fmt.Errorf("create session issuer: %w", err)
	}

	credentialBridge, err := bridge.New(authStore, authStore, sessionIssuer, []byte(cfg.ServerSecret))
	if err != nil {
		_ = listener.Close()
		_ = authStore.Close()
		_ = campaignStore.Close()
		return nil, fmt.Errorf("create credential bridge: %w", err)
	}

	verifier := wallet.NewVerifier(nonces)
	campaigns := campaignservice.New(campaignStore, campaignStore)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpjson.Write(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /v1/auth/wallet", authapi.NewHandler(verifier, credentialBridge).Authenticate)
	campaignapi.NewHandler(campaigns).Register(mux)

	handler := withRateLimit(limiter, cfg.RateLimitPerHour, mux)
	handler = withSessionIdentity(sessionIssuer, handler)
	handler = withTracing(handler)

	return &Server{
		listener:      listener,
		httpServer:    &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second},
		authStore:     authStore,
		campaignStore: campaignStore,
		redisClient:   redisClient,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run loads configuration, creates a server, and serves until the context
// ends.
func Run(ctx context.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	shutdownTracing, err := otel.Setup(ctx, "campfire")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the server and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.closeStores()

	log.Printf("campfire server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		err := <-serveErr
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	}
}

func (s *Server) closeStores() {
	if s.authStore != nil {
		if err := s.authStore.Close(); err != nil {
			log.Printf("close auth store: %v", err)
		}
	}
	if s.campaignStore != nil {
		if err := s.campaignStore.Close(); err != nil {
			log.Printf("close campaign store: %v", err)
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Printf("close redis client: %v", err)
		}
	}
}
