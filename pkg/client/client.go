// Package client implements fs.Driver on top of a remote driver server.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tostrovsky/tp-so-alternativo/pkg/dispatch"
	"github.com/tostrovsky/tp-so-alternativo/pkg/fs"
	"github.com/tostrovsky/tp-so-alternativo/pkg/rpc"
)

// Config contains the client configuration options
type Config struct {
	// ServerAddress is the address of the driver server (e.g., "localhost:7070")
	ServerAddress string

	// Timeout is the default timeout for RPC operations
	Timeout time.Duration

	// MaxRetries is the maximum number of retries for opens
	MaxRetries int

	// RetryDelay is the initial delay between retries (will be multiplied by backoff factor)
	RetryDelay time.Duration

	// BackoffFactor is the multiplier for retry delay after each attempt
	BackoffFactor float64

	// WriteChunkSize is the largest payload sent in a single Write call.
	// It must not exceed the server's MaxWriteSize.
	WriteChunkSize int

	// Dispatch configures the goroutines running asynchronous operations
	Dispatch dispatch.Config

	// DialOptions are appended to the default dial options
	DialOptions []grpc.DialOption

	Logger *slog.Logger
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ServerAddress:  "localhost:7070",
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		RetryDelay:     500 * time.Millisecond,
		BackoffFactor:  2.0,
		WriteChunkSize: 1024 * 1024, // 1MB
		Dispatch:       dispatch.DefaultConfig(),
	}
}

// Client is an fs.Driver whose files live on a driver server. Descriptors
// are local to the client.
type Client struct {
	// gRPC connection to the server
	conn *grpc.ClientConn

	driverClient *rpc.DriverClient

	config *Config

	// Open remote files by local descriptor
	handles *handleTable

	dispatcher *dispatch.Dispatcher
	closed     atomic.Bool
	logger     *slog.Logger
}

var _ fs.Driver = (*Client)(nil)

// NewClient creates a new client. The connection is established lazily on
// the first call.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.WriteChunkSize < 1 {
		return nil, fmt.Errorf("write chunk size must be positive, got %d", config.WriteChunkSize)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "client", "server", config.ServerAddress)

	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	opts = append(opts, config.DialOptions...)

	conn, err := grpc.NewClient(config.ServerAddress, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	dispatchConfig := config.Dispatch
	if dispatchConfig.Logger == nil {
		dispatchConfig.Logger = logger
	}

	return &Client{
		conn:         conn,
		driverClient: rpc.NewDriverClient(conn),
		config:       config,
		handles:      newHandleTable(),
		dispatcher:   dispatch.New(dispatchConfig),
		logger:       logger,
	}, nil
}

// Close waits for pending asynchronous operations, closes every remote file
// still open and then the connection.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.dispatcher.Close()

	var errs []error
	for fd, rf := range c.handles.drain() {
		c.logger.Warn("closing leaked descriptor", "path", rf.path, "fd", int(fd))
		err := c.callWithTimeout(context.Background(), func(ctx context.Context) error {
			return c.driverClient.Close(ctx, rf.handle)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("client: close %q: %w", rf.path, rpc.StatusToError("Close", err)))
		}
	}

	if err := c.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
