package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/TheBuilderJR/dispatcher/internal/mcpserver"
	"github.com/TheBuilderJR/dispatcher/internal/notify"
	"github.com/TheBuilderJR/dispatcher/internal/server"
)

var version = "0.1.0"

func main() {
	port := flag.Int("port", 7780, "port number (auto-increments if busy)")
	dev := flag.Bool("dev", false, "enable verbose debug logging")
	local := flag.Bool("local", true, "listen on localhost only")
	storePath := flag.String("store", defaultStorePath(), "path to the sqlite-backed workspace store")
	mcpStdio := flag.Bool("mcp", false, "run the MCP tool surface over stdio instead of the HTTP server")
	showVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *showVersion {
		fmt.Println("dispatcherd", version)
		return
	}

	logLevel := slog.LevelInfo
	if *dev {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	notifyMgr, err := notify.NewManager(logger)
	if err != nil {
		logger.Error("failed to init notify manager", "err", err)
		os.Exit(1)
	}

	srv, err := server.New(server.Config{
		Addr:          fmt.Sprintf(":%d", *port),
		Logger:        logger,
		Version:       version,
		StorePath:     *storePath,
		NotifyManager: notifyMgr,
	})
	if err != nil {
		logger.Error("failed to initialize server", "err", err)
		os.Exit(1)
	}

	if *mcpStdio {
		mcp := mcpserver.New(srv.Workspace(), srv.Engine(), logger)
		if err := mcp.ServeStdio(); err != nil {
			logger.Error("mcp server error", "err", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := listenWithFallback(localHost(*local), *port, 10, logger)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "\n  dispatcherd v%s running at:\n\n    http://%s\n\n", version, ln.Addr().String())

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
}

func localHost(local bool) string {
	if local {
		return "127.0.0.1"
	}
	return "0.0.0.0"
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "dispatcher.db"
	}
	dir := filepath.Join(home, ".config", "dispatcher")
	_ = os.MkdirAll(dir, 0o755)
	return filepath.Join(dir, "dispatcher.db")
}

func listenWithFallback(host string, startPort, maxAttempts int, logger *slog.Logger) (net.Listener, error) {
	for i := range maxAttempts {
		port := startPort + i
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			if i > 0 {
				logger.Info("port was busy, using fallback", "requested", startPort, "actual", port)
			}
			return ln, nil
		}
		if !strings.Contains(err.Error(), "address already in use") {
			return nil, err
		}
	}
	return nil, fmt.Errorf("all ports %d-%d are in use", startPort, startPort+maxAttempts-1)
}
