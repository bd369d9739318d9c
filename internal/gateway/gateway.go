// Package gateway serves a chunk store over the JSON API spoken by
// remote.HTTPStore, for local development and integration tests.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/chunksync/internal/chunker"
	"github.com/openmined/chunksync/internal/db"
	"github.com/openmined/chunksync/internal/errs"
	"github.com/openmined/chunksync/internal/remote"
)

const (
	DefaultAddr      = "127.0.0.1:7938"
	DefaultDBPath    = "deploy/gateway.db"
	DefaultRateLimit = "1000-S"

	shutdownTimeout = 5 * time.Second
)

type Config struct {
	Addr   string `mapstructure:"addr"`
	DBPath string `mapstructure:"db_path"`
	// Token, when set, is required as a bearer token on every API call.
	Token string `mapstructure:"token"`
	// JWTSecret, when set, requires a gateway JWT signed with it instead.
	JWTSecret    string `mapstructure:"jwt_secret"`
	MaxChunkSize int    `mapstructure:"max_chunk_size"`
	// RateLimit is a limiter rate such as "1000-S". Empty disables it.
	RateLimit string `mapstructure:"rate_limit"`
	// CacheSize is how many resources keep their chunks cached for reads.
	// Zero disables the cache.
	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: gateway addr missing", errs.ErrInvalidConfiguration)
	}
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("%w: gateway max chunk size must be positive", errs.ErrInvalidConfiguration)
	}
	return nil
}

type Server struct {
	config *Config
	conn   *sqlx.DB
	store  *remote.SQLStore
	server *http.Server
}

func New(ctx context.Context, config *Config) (*Server, error) {
	if config.MaxChunkSize == 0 {
		config.MaxChunkSize = chunker.DefaultMaxChunkSize
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	path := config.DBPath
	if path == "" {
		path = db.MemoryPath
	}
	conn, err := db.NewSqliteDB(db.WithPath(path))
	if err != nil {
		return nil, fmt.Errorf("open gateway db: %w", err)
	}

	store, err := remote.NewSQLStore(ctx, conn, config.MaxChunkSize)
	if err != nil {
		conn.Close()
		return nil, err
	}

	handler, err := SetupRoutes(store, config)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Server{
		config: config,
		conn:   conn,
		store:  store,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *Server) Store() remote.ChunkStore {
	return s.store
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}
	slog.Info("gateway start", "addr", ln.Addr().String(), "db", s.config.DBPath, "maxChunkSize", s.config.MaxChunkSize)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.server.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		s.conn.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	return s.Stop()
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.server.Shutdown(ctx)
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	slog.Info("gateway stop")
	return err
}
