package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zimx/zimx-sync/internal/client/storage"
	"github.com/zimx/zimx-sync/internal/models"
)

func (c *Cli) runPut(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: put <path> [file]")
	}
	path := args[0]

	var (
		content []byte
		err     error
	)
	if len(args) > 1 {
		content, err = os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[1], err)
		}
	} else {
		content, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
	}

	if err := c.coordinator.EnqueueEdit(ctx, path, content); err != nil {
		return err
	}

	c.io.Printf("Queued write of %s (%d bytes). Run 'sync' to push.\n", path, len(content))
	return nil
}

func (c *Cli) runGet(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: get <path>")
	}

	entry, err := c.cache.GetCached(ctx, args[0])
	if err != nil {
		if errors.Is(err, storage.ErrCacheMiss) {
			return fmt.Errorf("%s is not in the local cache; run 'sync' first", args[0])
		}
		return err
	}

	c.io.Printf("%s", string(entry.Content))
	return nil
}

func (c *Cli) runList(ctx context.Context) error {
	entries, err := c.cache.ListCached(ctx)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		c.io.Println("Cache is empty. Run 'sync' to pull the vault.")
		return nil
	}

	for _, e := range entries {
		c.io.Printf("%-50s rev %d\n", e.Path, e.Revision)
	}
	return nil
}

func (c *Cli) runRemove(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: rm <path>")
	}

	if err := c.coordinator.EnqueueDelete(ctx, args[0]); err != nil {
		return err
	}

	c.io.Printf("Queued delete of %s.\n", args[0])
	return nil
}

func (c *Cli) runMove(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: mv <old> <new>")
	}

	if err := c.coordinator.EnqueueMove(ctx, args[0], args[1]); err != nil {
		return err
	}

	c.io.Printf("Queued move of %s to %s.\n", args[0], args[1])
	return nil
}

func (c *Cli) runAttach(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: attach <page> <files...>")
	}
	page := args[0]

	files := make([]models.Attachment, 0, len(args)-1)
	for _, name := range args[1:] {
		data, err := os.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		files = append(files, models.Attachment{
			Name: filepath.Base(name),
			Data: data,
		})
	}

	if err := c.coordinator.EnqueueAttach(ctx, page, files); err != nil {
		return err
	}

	c.io.Printf("Queued %d attachment(s) for %s.\n", len(files), page)
	return nil
}

func (c *Cli) runReorder(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: reorder <folder> <names...>")
	}

	manifest, err := json.Marshal(args[1:])
	if err != nil {
		return fmt.Errorf("failed to encode order: %w", err)
	}

	if err := c.coordinator.EnqueueReorder(ctx, args[0], manifest); err != nil {
		return err
	}

	c.io.Printf("Queued new child order for %s.\n", args[0])
	return nil
}
