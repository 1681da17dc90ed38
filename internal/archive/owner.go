package archive

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperengineering/mykrok/internal/types"
)

const (
	// MaxOwnerLength is the maximum length of an owner ID.
	MaxOwnerLength = 64
	// OwnerPrefix prefixes every owner partition directory.
	OwnerPrefix = "athl="
	// SessionPrefix prefixes every record partition directory.
	SessionPrefix = "ses="
)

var (
	// ErrInvalidOwner indicates an owner ID failed validation.
	ErrInvalidOwner = errors.New("invalid owner")
	// ErrCorruptRecord indicates a metadata document exists but cannot be parsed.
	ErrCorruptRecord = errors.New("corrupt record")
	// ErrInvalidSessionKey indicates a malformed session key.
	ErrInvalidSessionKey = errors.New("invalid session key")
)

var ownerPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidateOwner validates an owner ID against format rules.
func ValidateOwner(owner string) error {
	if owner == "" {
		return fmt.Errorf("%w: empty owner", ErrInvalidOwner)
	}
	if len(owner) > MaxOwnerLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidOwner, MaxOwnerLength)
	}
	if !ownerPattern.MatchString(owner) {
		return fmt.Errorf("%w: %q (must be lowercase alphanumeric with hyphens or underscores)", ErrInvalidOwner, owner)
	}
	return nil
}

// OwnerFromAthlete derives the owner ID of an athlete: the normalized
// username, or athlete-<id> when the username is empty.
func OwnerFromAthlete(a *types.Athlete) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(a.Username)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	owner := strings.TrimLeft(b.String(), "-_")
	if len(owner) > MaxOwnerLength {
		owner = owner[:MaxOwnerLength]
	}
	if owner == "" {
		return "athlete-" + strconv.FormatInt(a.ID, 10)
	}
	return owner
}
