package redis

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
)

// Client is a go-redis client that knows how to classify its failures.
type Client struct {
	rdb *goredis.Client
	log *logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// New builds a client for an enabled cfg. It does not dial; the first
// command or Ping does.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is disabled")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("redis config: %w", err)
	}
	opts, err := cfg.options()
	if err != nil {
		return nil, fmt.Errorf("redis config: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	log.Debug("Redis client created", map[string]any{
		"addr":      cfg.Addr,
		"db":        cfg.DB,
		"pool_size": cfg.Pool.Size,
		"tls":       opts.TLSConfig != nil,
	})
	return &Client{rdb: goredis.NewClient(opts), log: log}, nil
}

// Ping round-trips to the server.
func (c *Client) Ping(ctx context.Context) error {
	return classify("ping", c.rdb.Ping(ctx).Err())
}

// Close is idempotent and nil-safe.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.log.Debug("Closing Redis connection")
		c.closeErr = c.rdb.Close()
	})
	return c.closeErr
}

// Unwrap returns the go-redis client.
func (c *Client) Unwrap() *goredis.Client {
	return c.rdb
}

// classify maps go-redis failures onto flowkit error classes. Network and
// pool errors are transient; server replies are permanent.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsAppError(err); ok {
		return err
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) || stderrors.Is(err, goredis.ErrClosed) ||
		stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Transient("redis "+op, err)
	}
	var replyErr goredis.Error
	if stderrors.As(err, &replyErr) {
		if msg := replyErr.Error(); strings.HasPrefix(msg, "NOAUTH") || strings.HasPrefix(msg, "WRONGPASS") {
			return errors.Unauthorized("redis " + op).WithCause(err)
		}
		return errors.Permanent("redis "+op, err)
	}
	return errors.ConnectionFailed("redis", err)
}
