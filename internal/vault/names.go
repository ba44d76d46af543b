package vault

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidVaultName is returned when a vault name breaks the naming rules.
	ErrInvalidVaultName = errors.New("invalid vault name")
	// ErrNoChunks is returned when Ingest is called without any chunks.
	ErrNoChunks = errors.New("no chunks to ingest")
)

const (
	minNameLen = 3
	maxNameLen = 63
)

// ValidateName checks that name can be used as a vault name: 3 to 63
// characters from [A-Za-z0-9._-], starting and ending with a letter or digit.
func ValidateName(name string) error {
	if len(name) < minNameLen || len(name) > maxNameLen {
		return fmt.Errorf("%w: %q must be %d-%d characters", ErrInvalidVaultName, name, minNameLen, maxNameLen)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if isAlnum(c) {
			continue
		}
		if i == 0 || i == len(name)-1 {
			return fmt.Errorf("%w: %q must start and end with a letter or digit", ErrInvalidVaultName, name)
		}
		if c != '.' && c != '_' && c != '-' {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidVaultName, name, c)
		}
	}
	return nil
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
