package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/tostrovsky/tp-so-alternativo/pkg/client"
	"github.com/tostrovsky/tp-so-alternativo/pkg/fs"
)

// operation moves data between the opened file and the process through buf
type operation func(ctx context.Context, file *fs.OpenedFile, buf *fs.Buffer, async bool) error

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command line flags
	serverAddr := flag.String("server", "localhost:7070", "Driver server address")
	path := flag.String("path", "", "File to operate on, relative to the server root")
	opName := flag.String("op", "cat", "Operation to perform (cat, put)")
	bufferSize := flag.Int("buffer", 4096, "Buffer size in bytes")
	async := flag.Bool("async", false, "Use asynchronous reads and writes")
	timeout := flag.Duration("timeout", 30*time.Second, "Timeout for the whole operation")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *path == "" || *bufferSize < 1 {
		flag.Usage()
		return 2
	}
	op, err := lookupOperation(*opName, os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	config := client.DefaultConfig()
	config.ServerAddress = *serverAddr
	config.Logger = logger

	c, err := client.NewClient(config)
	if err != nil {
		logger.Error("failed to create client", "error", err)
		return 1
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("closing client", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	file, err := fs.New(c, fs.WithLogger(logger)).Open(ctx, *path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		return 1
	}

	err = op(ctx, file, fs.NewBuffer(*bufferSize), *async)
	if closeErr := file.Close(ctx); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", *opName, err)
		return 1
	}
	return 0
}

// lookupOperation resolves an -op name. cat copies the file to out, put
// copies in to the file.
func lookupOperation(name string, in io.Reader, out io.Writer) (operation, error) {
	switch name {
	case "cat":
		return func(ctx context.Context, file *fs.OpenedFile, buf *fs.Buffer, async bool) error {
			return cat(ctx, file, buf, async, out)
		}, nil
	case "put":
		return func(ctx context.Context, file *fs.OpenedFile, buf *fs.Buffer, async bool) error {
			return put(ctx, file, buf, async, in)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported operation: %s", name)
	}
}

func cat(ctx context.Context, file *fs.OpenedFile, buf *fs.Buffer, async bool, out io.Writer) error {
	for {
		buf.Reset()
		if err := read(ctx, file, buf, async); err != nil {
			return err
		}
		if buf.Len() == 0 {
			return nil
		}
		if _, err := out.Write(buf.Window()); err != nil {
			return err
		}
	}
}

func put(ctx context.Context, file *fs.OpenedFile, buf *fs.Buffer, async bool, in io.Reader) error {
	for {
		buf.Reset()
		n, err := io.ReadFull(in, buf.Bytes())
		if n > 0 {
			if limitErr := buf.Limit(n); limitErr != nil {
				return limitErr
			}
			if writeErr := write(ctx, file, buf, async); writeErr != nil {
				return writeErr
			}
		}
		switch err {
		case nil:
		case io.EOF, io.ErrUnexpectedEOF:
			return nil
		default:
			return err
		}
	}
}

func read(ctx context.Context, file *fs.OpenedFile, buf *fs.Buffer, async bool) error {
	if !async {
		return file.Read(ctx, buf)
	}

	done := make(chan error, 1)
	file.AsyncRead(buf, func(_ *fs.Buffer, err error) {
		done <- err
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func write(ctx context.Context, file *fs.OpenedFile, buf *fs.Buffer, async bool) error {
	if !async {
		return file.Write(ctx, buf)
	}

	done := make(chan error, 1)
	file.AsyncWrite(buf, func(err error) {
		done <- err
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
