package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zimx/zimx-sync/internal/client/storage"
)

func (c *Cli) runRegister(ctx context.Context) error {
	username, err := c.io.ReadInput("Username: ")
	if err != nil {
		return err
	}
	password, err := c.io.ReadPassword("Password: ")
	if err != nil {
		return err
	}
	confirm, err := c.io.ReadPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	userID, err := c.authService.Register(ctx, username, password)
	if err != nil {
		return err
	}

	c.io.Printf("Account created (id %s). Run 'login' to start a session.\n", userID)
	return nil
}

func (c *Cli) runLogin(ctx context.Context) error {
	username, err := c.io.ReadInput("Username: ")
	if err != nil {
		return err
	}
	password, err := c.io.ReadPassword("Password: ")
	if err != nil {
		return err
	}

	auth, err := c.authService.Login(ctx, username, password)
	if err != nil {
		return err
	}

	c.io.Printf("Logged in as %s (token valid until %s)\n",
		auth.Username, time.Unix(auth.ExpiresAt, 0).Format(time.RFC3339))
	return nil
}

func (c *Cli) runLogout(ctx context.Context) error {
	if err := c.authService.Logout(ctx); err != nil {
		return err
	}
	c.io.Println("Logged out.")
	return nil
}

func (c *Cli) runStatus(ctx context.Context) error {
	session, err := c.authService.Session(ctx)
	switch {
	case errors.Is(err, storage.ErrAuthNotFound):
		c.io.Println("Not authenticated. Run 'login' first.")
	case err != nil:
		c.io.Printf("Session: %v\n", err)
	default:
		c.io.Printf("Logged in as %s (token expires %s)\n",
			session.Username, time.Unix(session.ExpiresAt, 0).Format(time.RFC3339))
	}

	status, err := c.coordinator.Status(ctx)
	if err != nil {
		return err
	}

	c.io.Printf("Pending operations: %d\n", status.PendingCount)
	if !status.LastSyncAt.IsZero() {
		c.io.Printf("Last sync: %s\n", status.LastSyncAt.Format(time.RFC3339))
	}
	if status.LastError != "" {
		c.io.Printf("Last error: %s\n", status.LastError)
	}
	if status.HasConflicts {
		c.io.Println("Unresolved conflicts present. Run 'conflicts' to inspect.")
	}
	return nil
}
