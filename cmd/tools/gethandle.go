package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tostrovsky/tp-so-alternativo/pkg/fs"
	"github.com/tostrovsky/tp-so-alternativo/pkg/rpc"
)

func main() {
	// Parse command line flags
	serverAddr := flag.String("server", "localhost:7070", "Driver server address")
	path := flag.String("path", "", "Path relative to the server root")
	handleHex := flag.String("handle", "", "Sealed handle in hex format to decode instead of opening a path")
	keep := flag.Bool("keep", false, "Leave the file open on the server")

	flag.Parse()

	if *handleHex != "" {
		data, err := hex.DecodeString(*handleHex)
		if err != nil {
			log.Fatalf("Invalid handle format: %v", err)
		}
		printHandle(data)
		return
	}
	if *path == "" {
		log.Fatalf("Either -path or -handle is required")
	}

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	driverClient := rpc.NewDriverClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	handle, err := driverClient.Open(ctx, *path)
	if err != nil {
		log.Fatalf("Open failed: %v", rpc.StatusToError("Open", err))
	}

	fmt.Printf("Handle for '%s': %s\n", *path, hex.EncodeToString(handle))
	printHandle(handle)

	if *keep {
		return
	}
	if err := driverClient.Close(ctx, handle); err != nil {
		log.Fatalf("Close failed: %v", rpc.StatusToError("Close", err))
	}
}

func printHandle(data []byte) {
	if len(data) != fs.SealedHandleSize {
		log.Fatalf("Handle has %d bytes, want %d", len(data), fs.SealedHandleSize)
	}
	h, err := fs.DeserializeHandle(data[:fs.HandleSize])
	if err != nil {
		log.Fatalf("Failed to decode handle: %v", err)
	}
	fmt.Printf("Server ID: %d\n", h.ServerID)
	fmt.Printf("Descriptor: %d\n", h.Descriptor)
	fmt.Printf("Generation: %d\n", h.Generation)
	fmt.Printf("Tag: %s\n", hex.EncodeToString(data[fs.HandleSize:]))
}
