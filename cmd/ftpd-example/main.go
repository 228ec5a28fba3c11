// Command ftpd-example embeds the ftpd server with a single local user
// and runs until interrupted, demonstrating the library's public API.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"

	"github.com/embeddable-ftpd/ftpd"
)

func main() {
	logger := setupLogger()
	slog.SetDefault(logger)

	addr := os.Getenv("FTP_SERVER_ADDR")
	if addr == "" {
		addr = ":2121"
	}
	root := os.Getenv("FTP_SERVER_ROOT")
	if root == "" {
		root = "."
	}

	server := ftpd.New(addr, logger, logger)

	user := os.Getenv("FTP_USER")
	pass := os.Getenv("FTP_PASS")
	if user != "" && pass != "" {
		if !server.AddUser(user, pass, root, ftpd.All) {
			logger.Error("failed to register user", "user", user)
			os.Exit(1)
		}
	} else {
		server.AddUserAnonymous(root, ftpd.ReadOnly)
		logger.Info("no FTP_USER/FTP_PASS set, registered the anonymous account read-only")
	}

	if !server.Start(4) {
		logger.Error("failed to start server", "addr", addr)
		os.Exit(1)
	}
	logger.Info("ftp server started", "address", server.GetAddress(), "root", root)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	server.Stop()
}

func setupLogger() *slog.Logger {
	logLevel := slog.LevelInfo
	addSource := false
	switch os.Getenv("LOG_LEVEL") {
	case "DEBUG":
		logLevel = slog.LevelDebug
		addSource = true
	case "INFO":
		logLevel = slog.LevelInfo
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	}

	handler := tint.NewHandler(os.Stdout, &tint.Options{
		AddSource: addSource,
		Level:     logLevel,
	})
	return slog.New(handler).With("app", "ftpd-example")
}
