package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tostrovsky/tp-so-alternativo/pkg/fs/local"
	"github.com/tostrovsky/tp-so-alternativo/pkg/server"
)

func main() {
	// Parse command line flags
	listenAddr := flag.String("listen", ":7070", "Network address to listen on")
	rootPath := flag.String("root", "./exports", "Root directory to serve")
	maxConcurrent := flag.Int("max-concurrent", 100, "Maximum concurrent requests")
	maxReadSize := flag.Int("max-read", 1024*1024, "Maximum read size in bytes")
	maxWriteSize := flag.Int("max-write", 1024*1024, "Maximum write size in bytes")
	requestTimeout := flag.Int("timeout", 30, "Request timeout in seconds")
	create := flag.Bool("create", false, "Create files that do not exist on open")
	workers := flag.Int("workers", 16, "Goroutines serving asynchronous driver operations")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Ensure served directory exists
	if err := os.MkdirAll(*rootPath, 0755); err != nil {
		logger.Error("failed to create root directory", "root", *rootPath, "error", err)
		os.Exit(1)
	}

	driverConfig := local.DefaultConfig(*rootPath)
	if *create {
		driverConfig.Flags |= unix.O_CREAT
	}
	driverConfig.Dispatch.Workers = *workers
	driverConfig.Logger = logger

	driver, err := local.NewLocalDriver(driverConfig)
	if err != nil {
		logger.Error("failed to initialize driver", "error", err)
		os.Exit(1)
	}
	defer driver.Close()

	config := &server.Config{
		ListenAddress:  *listenAddr,
		MaxConcurrent:  *maxConcurrent,
		MaxReadSize:    *maxReadSize,
		MaxWriteSize:   *maxWriteSize,
		RequestTimeout: time.Duration(*requestTimeout) * time.Second,
		Logger:         logger,
	}

	driverServer, err := server.NewDriverServer(config, driver)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Start the server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- driverServer.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for either the server to error or a signal
	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "error", err)
			driver.Close()
			os.Exit(1)
		}
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
		driverServer.Stop()
	}
}
