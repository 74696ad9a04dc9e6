// Package cli implements the zimx-sync command line client.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/zimx/zimx-sync/internal/client/api"
	"github.com/zimx/zimx-sync/internal/client/auth"
	"github.com/zimx/zimx-sync/internal/client/iocli"
	"github.com/zimx/zimx-sync/internal/client/resolve"
	"github.com/zimx/zimx-sync/internal/client/storage"
	clientsync "github.com/zimx/zimx-sync/internal/client/sync"
	"github.com/zimx/zimx-sync/internal/models"
)

type Cli struct {
	io          iocli.IO
	apiClient   *api.Client
	authService auth.Service
	coordinator *clientsync.Coordinator
	resolver    *resolve.Resolver
	cache       storage.CacheStorage
	vault       models.VaultContext
}

func New(
	io iocli.IO,
	apiClient *api.Client,
	authService auth.Service,
	coordinator *clientsync.Coordinator,
	resolver *resolve.Resolver,
	cache storage.CacheStorage,
	vault models.VaultContext,
) *Cli {
	return &Cli{
		io:          io,
		apiClient:   apiClient,
		authService: authService,
		coordinator: coordinator,
		resolver:    resolver,
		cache:       cache,
		vault:       vault,
	}
}

// Run dispatches one command. Commands past auth assume a valid session; the
// sync coordinator runs only for the duration of the invocation.
func (c *Cli) Run(ctx context.Context, command string, args []string) {
	var err error

	switch command {
	case "register":
		err = c.runRegister(ctx)
	case "login":
		err = c.runLogin(ctx)
	case "logout":
		err = c.runLogout(ctx)
	case "status":
		err = c.runStatus(ctx)
	case "put":
		err = c.runPut(ctx, args)
	case "get":
		err = c.runGet(ctx, args)
	case "list":
		err = c.runList(ctx)
	case "rm":
		err = c.runRemove(ctx, args)
	case "mv":
		err = c.runMove(ctx, args)
	case "attach":
		err = c.runAttach(ctx, args)
	case "reorder":
		err = c.runReorder(ctx, args)
	case "sync":
		err = c.runSync(ctx)
	case "changes":
		err = c.runChanges(ctx, args)
	case "conflicts":
		err = c.runConflicts(ctx)
	case "resolve":
		err = c.runResolve(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		PrintUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// PrintUsage prints the command summary.
func PrintUsage() {
	fmt.Print(`zimx-sync client

Usage:
  zimx-client [flags] <command> [args]

Account:
  register                      create a server account
  login                         authenticate and store the session
  logout                        drop the stored session
  status                        session and sync state

Documents (local, synced in the background):
  put <path> [file]             write a document from file or stdin
  get <path>                    print the cached document
  list                          list cached documents
  rm <path>                     delete a document
  mv <old> <new>                move a document or subtree
  attach <page> <files...>      attach files next to a page
  reorder <folder> <names...>   set explicit child order of a folder

Sync:
  sync                          run one pull/push cycle now
  changes [since]               show the server change feed
  conflicts                     list unresolved conflicts with diffs
  resolve <id> local            overwrite server with local content
  resolve <id> remote           discard local edit, adopt server copy
  resolve <id> merge <file>     push user-merged content

Flags:
  -server <url>   server base URL (default http://localhost:8080)
  -vault <id>     vault id (default "main")
  -db <path>      client database file
`)
}
