package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrCodeNotFound is returned when no active code matches.
	ErrCodeNotFound = errors.New("identity: linking code not found")

	// ErrCodeExpired is returned for codes past their TTL.
	ErrCodeExpired = errors.New("identity: linking code expired")
)

// codeAlphabet deliberately omits nothing: players type these codes into
// game chat, and the original plugin accepts the full A-Z0-9 range.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// LinkCode is one row of the linking_codes table. The code itself is
// never stored; only its bcrypt hash is, so a database leak does not let
// anyone hijack a pending link.
type LinkCode struct {
	DiscordID       string
	DiscordUsername string
	CodeHash        []byte
	ExpiresAt       time.Time
}

// Expired reports whether the code's TTL has passed.
func (c *LinkCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Matches compares a candidate code against the stored hash.
func (c *LinkCode) Matches(code string) bool {
	return bcrypt.CompareHashAndPassword(c.CodeHash, []byte(code)) == nil
}

// GenerateCode produces a random code of length n from the code alphabet.
func GenerateCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return string(buf), nil
}

// NewLinkCode hashes a freshly generated code for persistence.
func NewLinkCode(discordID, discordUsername, code string, ttl time.Duration) (*LinkCode, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	return &LinkCode{
		DiscordID:       discordID,
		DiscordUsername: discordUsername,
		CodeHash:        hash,
		ExpiresAt:       time.Now().UTC().Add(ttl),
	}, nil
}

// CodeRepository persists linking codes. A Discord user holds at most
// one active code; issuing a new one replaces the old.
type CodeRepository interface {
	// Replace deletes any existing code for the user and stores the new one.
	Replace(ctx context.Context, code *LinkCode) error

	// Active returns all unexpired codes. The redeem flow bcrypt-compares
	// the candidate against each; the active set is tiny (codes live five
	// minutes), so the linear scan is fine.
	Active(ctx context.Context, now time.Time) ([]*LinkCode, error)

	// Delete removes the code for a user, after redemption or on unlink.
	Delete(ctx context.Context, discordID string) error

	// PurgeExpired removes rows past their TTL.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
