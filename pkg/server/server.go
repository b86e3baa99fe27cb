// Package server exposes an fs.Driver over gRPC.
package server

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"path"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/tostrovsky/tp-so-alternativo/pkg/fs"
	"github.com/tostrovsky/tp-so-alternativo/pkg/rpc"
)

// Config contains the driver server configuration
type Config struct {
	// Network address to listen on (e.g. ":7070")
	ListenAddress string

	// Maximum concurrent requests
	MaxConcurrent int

	// Maximum read size in bytes; larger reads are shortened
	MaxReadSize int

	// Maximum write size in bytes; larger writes are rejected
	MaxWriteSize int

	// Request timeout, including the wait for a free worker
	RequestTimeout time.Duration

	// ServerID is embedded in every handle; zero picks a random one
	ServerID uint32

	Logger *slog.Logger
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ListenAddress:  ":7070",
		MaxConcurrent:  100,
		MaxReadSize:    1024 * 1024, // 1MB
		MaxWriteSize:   1024 * 1024, // 1MB
		RequestTimeout: 30 * time.Second,
	}
}

// openEntry is read-locked by every request using the file and write-locked
// to close it, so a descriptor is never released while a call is in flight.
type openEntry struct {
	mu         sync.RWMutex
	file       *fs.OpenedFile
	generation uint32
}

// DriverServer implements rpc.DriverServer on top of an fs.FileSystem.
type DriverServer struct {
	config     *Config
	fileSystem *fs.FileSystem

	serverID uint32

	// Secret key for handle signatures
	handleKey []byte

	mu         sync.Mutex
	files      map[fs.Descriptor]*openEntry
	generation uint32

	// Worker pool for limiting concurrent requests
	workerPool chan struct{}

	grpcServer *grpc.Server
	logger     *slog.Logger
}

var _ rpc.DriverServer = (*DriverServer)(nil)

// NewDriverServer creates a server for driver. The driver stays owned by the
// caller.
func NewDriverServer(config *Config, driver fs.Driver) (*DriverServer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxConcurrent < 1 {
		return nil, fmt.Errorf("max concurrent must be positive, got %d", config.MaxConcurrent)
	}
	if config.MaxReadSize < 1 || config.MaxWriteSize < 1 {
		return nil, fmt.Errorf("max read and write sizes must be positive")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Generate random key for handle signatures
	handleKey := make([]byte, 32)
	if _, err := rand.Read(handleKey); err != nil {
		return nil, fmt.Errorf("failed to generate handle key: %w", err)
	}

	serverID := config.ServerID
	if serverID == 0 {
		id := make([]byte, 4)
		if _, err := rand.Read(id); err != nil {
			return nil, fmt.Errorf("failed to generate server id: %w", err)
		}
		serverID = binary.BigEndian.Uint32(id) | 1
	}

	s := &DriverServer{
		config:     config,
		fileSystem: fs.New(driver, fs.WithLogger(logger)),
		serverID:   serverID,
		handleKey:  handleKey,
		files:      make(map[fs.Descriptor]*openEntry),
		workerPool: make(chan struct{}, config.MaxConcurrent),
		logger:     logger.With("component", "server", "server_id", serverID),
	}
	s.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(s.processRequest))
	rpc.RegisterDriverServer(s.grpcServer, s)

	return s, nil
}

// Start listens on the configured address and serves until Stop.
func (s *DriverServer) Start() error {
	lis, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves requests arriving on lis until Stop.
func (s *DriverServer) Serve(lis net.Listener) error {
	s.logger.Info("driver server starting", "address", lis.Addr().String())
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and closes every file clients left open.
func (s *DriverServer) Stop() {
	s.grpcServer.GracefulStop()

	s.mu.Lock()
	files := s.files
	s.files = make(map[fs.Descriptor]*openEntry)
	s.mu.Unlock()

	for fd, entry := range files {
		s.logger.Warn("closing file left open by a client", "path", entry.file.Path(), "fd", int(fd))
		if err := entry.close(context.Background()); err != nil {
			s.logger.Error("closing file", "path", entry.file.Path(), "error", err)
		}
	}
	s.logger.Info("driver server stopped")
}

// OpenFiles returns the number of files currently open through the server.
func (s *DriverServer) OpenFiles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// Open implements the Open RPC method
func (s *DriverServer) Open(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	file, err := s.fileSystem.Open(ctx, req.GetValue())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.generation++
	handle := &fs.Handle{
		ServerID:   s.serverID,
		Descriptor: file.Descriptor(),
		Generation: s.generation,
	}
	if prev, ok := s.files[file.Descriptor()]; ok {
		s.logger.Warn("driver reused an open descriptor", "fd", int(file.Descriptor()), "previous_path", prev.file.Path())
	}
	s.files[file.Descriptor()] = &openEntry{file: file, generation: handle.Generation}
	s.mu.Unlock()

	return wrapperspb.Bytes(handle.Seal(s.handleKey)), nil
}

// Close implements the Close RPC method
func (s *DriverServer) Close(ctx context.Context, req *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	handle, err := fs.OpenSealed(s.handleKey, req.GetValue())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	entry, err := s.lookupLocked(handle)
	if err == nil {
		delete(s.files, handle.Descriptor)
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if err := entry.close(ctx); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

// Read implements the Read RPC method
func (s *DriverServer) Read(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	sealed, count, err := rpc.ProtoToReadRequest(req)
	if err != nil {
		return nil, err
	}
	entry, err := s.acquire(sealed)
	if err != nil {
		return nil, err
	}
	defer entry.mu.RUnlock()

	if int64(count) > int64(s.config.MaxReadSize) {
		count = uint32(s.config.MaxReadSize)
	}
	if count == 0 {
		return wrapperspb.Bytes(nil), nil
	}

	buf := fs.NewBuffer(int(count))
	if err := entry.file.Read(ctx, buf); err != nil {
		return nil, err
	}
	return wrapperspb.Bytes(buf.Window()), nil
}

// Write implements the Write RPC method
func (s *DriverServer) Write(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.UInt32Value, error) {
	sealed, payload, err := rpc.ProtoToWriteRequest(req)
	if err != nil {
		return nil, err
	}
	entry, err := s.acquire(sealed)
	if err != nil {
		return nil, err
	}
	defer entry.mu.RUnlock()

	if len(payload) > s.config.MaxWriteSize {
		return nil, fmt.Errorf("%w: write of %d bytes exceeds %d", fs.ErrWindowOutOfRange, len(payload), s.config.MaxWriteSize)
	}
	if len(payload) == 0 {
		return wrapperspb.UInt32(0), nil
	}

	if err := entry.file.Write(ctx, fs.WrapBuffer(payload)); err != nil {
		return nil, err
	}
	return wrapperspb.UInt32(uint32(len(payload))), nil
}

// acquire verifies a sealed handle and returns its entry read-locked. The
// caller must release it with entry.mu.RUnlock.
func (s *DriverServer) acquire(sealed []byte) (*openEntry, error) {
	handle, err := fs.OpenSealed(s.handleKey, sealed)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.lookupLocked(handle)
	if err != nil {
		return nil, err
	}
	// Entries are write-locked only after leaving the table, so this never
	// waits while s.mu is held.
	entry.mu.RLock()
	return entry, nil
}

// close waits for in-flight requests on the entry and closes its file. The
// entry must already be out of the table.
func (e *openEntry) close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.file.Close(ctx)
}

func (s *DriverServer) lookupLocked(handle *fs.Handle) (*openEntry, error) {
	if handle.ServerID != s.serverID {
		return nil, fmt.Errorf("%w: issued by server %d", fs.ErrInvalidHandle, handle.ServerID)
	}
	entry, ok := s.files[handle.Descriptor]
	if !ok || entry.generation != handle.Generation {
		return nil, fmt.Errorf("%w: %s", fs.ErrStale, handle)
	}
	return entry, nil
}

// acquireWorker gets a worker from the pool or times out
func (s *DriverServer) acquireWorker(ctx context.Context) error {
	select {
	case s.workerPool <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// releaseWorker returns a worker to the pool
func (s *DriverServer) releaseWorker() {
	<-s.workerPool
}

// processRequest applies the request timeout and concurrency limit, logs the
// outcome and converts fs errors into gRPC statuses.
func (s *DriverServer) processRequest(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	op := path.Base(info.FullMethod)
	clientAddr := "unknown"
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		clientAddr = p.Addr.String()
	}
	startTime := time.Now()

	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	if err := s.acquireWorker(ctx); err != nil {
		s.logger.Warn("no worker available", "op", op, "client", clientAddr, "error", err)
		return nil, rpc.ErrorToStatus(err)
	}
	defer s.releaseWorker()

	resp, err := handler(ctx, req)
	err = rpc.ErrorToStatus(err)

	duration := time.Since(startTime)
	if err != nil {
		s.logger.Warn("request failed", "op", op, "client", clientAddr,
			"code", status.Code(err).String(), "duration", duration, "error", err)
		return nil, err
	}
	s.logger.Debug("request served", "op", op, "client", clientAddr, "duration", duration)
	return resp, nil
}
