package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/andy6609/simplechat/internal/chat"
)

func main() {
	usersPath := flag.String("users", "user_pass.txt", "path to the username/password file")
	metricsAddr := flag.String("metrics-addr", ":9090", "metrics listen address (empty to disable)")
	wsAddr := flag.String("ws-addr", "", "WebSocket listen address (empty to disable)")
	flag.Parse()

	if flag.NArg() != 1 {
		usage("usage: server [flags] <server_port_no>")
	}
	port, err := strconv.Atoi(flag.Arg(0))
	if err != nil {
		usage("port number must be an integer")
	}
	if port < 1 || port > 65535 {
		usage("port number must be a positive integer between 1 and 65535")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	users, err := chat.LoadUsers(*usersPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	reg := chat.NewRegistry(users, logger)

	srv := chat.NewServer(chat.Config{
		Addr:        ":" + strconv.Itoa(port),
		MetricsAddr: *metricsAddr,
		WSAddr:      *wsAddr,
	}, reg, logger)
	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	srv.Stop()
}

func usage(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
