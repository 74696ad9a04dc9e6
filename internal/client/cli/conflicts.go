package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/zimx/zimx-sync/internal/client/resolve"
)

func (c *Cli) runConflicts(ctx context.Context) error {
	conflicts, err := c.resolver.Conflicts(ctx)
	if err != nil {
		return err
	}

	if len(conflicts) == 0 {
		c.io.Println("No unresolved conflicts.")
		return nil
	}

	for _, conflict := range conflicts {
		c.io.Printf("Conflict %s\n", conflict.EntryID)
		c.io.Printf("  path:            %s\n", conflict.Path)
		c.io.Printf("  remote revision: %d (%s)\n", conflict.RemoteRevision,
			conflict.RemoteModifiedAt.Format(time.RFC3339))
		if conflict.RemoteDeleted {
			c.io.Println("  remote state:    deleted")
		}

		diff, err := resolve.UnifiedDiff(conflict)
		if err != nil {
			return err
		}
		if diff != "" {
			c.io.Printf("%s\n", diff)
		}
	}

	c.io.Printf("%d conflict(s). Resolve with 'resolve <id> local|remote|merge <file>'.\n", len(conflicts))
	return nil
}

func (c *Cli) runResolve(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: resolve <id> local|remote|merge <file>")
	}
	entryID, decision := args[0], args[1]

	switch decision {
	case "local":
		if err := c.resolver.KeepLocal(ctx, entryID); err != nil {
			return err
		}
		c.io.Println("Kept local content; it will overwrite the server on the next sync.")

	case "remote":
		if err := c.resolver.KeepRemote(ctx, entryID); err != nil {
			return err
		}
		c.io.Println("Adopted the server copy; local edit discarded.")

	case "merge":
		if len(args) < 3 {
			return fmt.Errorf("usage: resolve <id> merge <file>")
		}
		merged, err := os.ReadFile(args[2])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[2], err)
		}
		if err := c.resolver.Merge(ctx, entryID, merged); err != nil {
			return err
		}
		c.io.Println("Merged content queued; it will be pushed on the next sync.")

	default:
		return fmt.Errorf("unknown decision %q: want local, remote or merge", decision)
	}

	return nil
}
