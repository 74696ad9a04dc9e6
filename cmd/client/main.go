package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zimx/zimx-sync/internal/client/api"
	"github.com/zimx/zimx-sync/internal/client/auth"
	"github.com/zimx/zimx-sync/internal/client/cli"
	"github.com/zimx/zimx-sync/internal/client/iocli"
	"github.com/zimx/zimx-sync/internal/client/outbox"
	"github.com/zimx/zimx-sync/internal/client/resolve"
	"github.com/zimx/zimx-sync/internal/client/storage"
	"github.com/zimx/zimx-sync/internal/client/storage/boltdb"
	clientsync "github.com/zimx/zimx-sync/internal/client/sync"
	"github.com/zimx/zimx-sync/internal/models"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "Server base URL")
	vaultID := flag.String("vault", "main", "Vault id")
	dbPath := flag.String("db", "", "Client database file (default ~/.zimx-sync/<vault>.db)")
	verbose := flag.Bool("v", false, "Verbose logging")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ZimX Sync Client\nVersion:    %s\nBuild Date: %s\nGit Commit: %s\n",
			Version, BuildDate, GitCommit)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage()
		os.Exit(1)
	}

	if err := run(*serverURL, *vaultID, *dbPath, *verbose, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(serverURL, vaultID, dbPath string, verbose bool, command string, args []string) error {
	ctx := context.Background()

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	vault, err := models.NewVaultContext(vaultID)
	if err != nil {
		return err
	}

	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dir := filepath.Join(home, ".zimx-sync")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		dbPath = filepath.Join(dir, vault.ID+".db")
	}

	store, err := boltdb.New(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open client storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	apiClient := api.NewClient(serverURL)
	authService := auth.NewService(apiClient, store)

	// Commands other than register/login need the stored token on the wire.
	if session, err := authService.Session(ctx); err == nil {
		apiClient.SetToken(session.AccessToken)
	} else if !errors.Is(err, storage.ErrAuthNotFound) && requiresAuth(command) {
		return err
	}

	queue := outbox.NewQueue(logger, store, outbox.DefaultRetryCeiling)
	if err := queue.RequeueInflight(ctx); err != nil {
		return err
	}

	io := iocli.NewStdio()
	coordinator := clientsync.NewCoordinator(logger, vault, apiClient, store, queue, store,
		clientsync.WithConflictFunc(func(c models.Conflict) {
			io.Printf("Conflict on %s (remote revision %d)\n", c.Path, c.RemoteRevision)
		}))
	resolver := resolve.NewResolver(logger, queue, store)

	app := cli.New(io, apiClient, authService, coordinator, resolver, store, vault)
	app.Run(ctx, command, args)
	return nil
}

// requiresAuth reports whether a command talks to the server with a session.
func requiresAuth(command string) bool {
	switch command {
	case "register", "login", "logout", "status", "get", "list":
		return false
	}
	return true
}
