package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/oosawy/iomux"
)

func init() {
	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func main() {
	var instance string
	if len(os.Args) > 1 {
		instance = os.Args[1]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	addr, err := iomux.Discover(ctx, instance)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Discover error:", err.Error())
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Connecting to %s\n", addr)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Dial error:", err.Error())
		os.Exit(1)
	}
	defer conn.Close()

	if _, err := io.Copy(os.Stdout, conn); err != nil {
		fmt.Fprintln(os.Stderr, "Copy error:", err.Error())
	}
}
