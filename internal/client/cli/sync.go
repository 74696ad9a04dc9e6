package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

func (c *Cli) runSync(ctx context.Context) error {
	c.coordinator.SyncOnce(ctx)

	status, err := c.coordinator.Status(ctx)
	if err != nil {
		return err
	}

	if status.LastError != "" {
		return fmt.Errorf("sync finished with error: %s", status.LastError)
	}

	c.io.Printf("Sync complete. Pending operations: %d\n", status.PendingCount)
	if status.HasConflicts {
		c.io.Println("Conflicts detected. Run 'conflicts' to inspect.")
	}
	return nil
}

func (c *Cli) runChanges(ctx context.Context, args []string) error {
	var since int64
	if len(args) > 0 {
		n, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid since value %q", args[0])
		}
		since = n
	}

	for {
		resp, err := c.apiClient.ChangesSince(ctx, c.vault, since, 0)
		if err != nil {
			return err
		}

		for _, change := range resp.Changes {
			marker := " "
			if change.Deleted {
				marker = "D"
			}
			c.io.Printf("%6d %s %s  %s\n", change.Revision, marker, change.Path,
				time.Unix(0, change.ModifiedAt).Format(time.RFC3339))
			if change.Revision > since {
				since = change.Revision
			}
		}

		if !resp.HasMore {
			c.io.Printf("Vault is at revision %d.\n", resp.CurrentRevision)
			return nil
		}
	}
}
