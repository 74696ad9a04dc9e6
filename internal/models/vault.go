package models

import (
	"fmt"
	"regexp"
)

var vaultIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// VaultContext identifies the vault a repository or coordinator call operates
// on. It is passed explicitly instead of living in process-wide state so that
// several vault sessions can run side by side without interference.
type VaultContext struct {
	ID string
}

// NewVaultContext validates the vault identifier and wraps it.
func NewVaultContext(id string) (VaultContext, error) {
	if !vaultIDPattern.MatchString(id) {
		return VaultContext{}, fmt.Errorf("invalid vault id %q", id)
	}
	return VaultContext{ID: id}, nil
}
