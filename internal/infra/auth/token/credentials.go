package token

import (
	"fmt"
	"strings"
	"sync"

	"ticketgate/internal/domain"

	"golang.org/x/crypto/bcrypt"
)

// StaticCredentials holds bcrypt password hashes keyed by username.
type StaticCredentials struct {
	hashes map[string][]byte

	dummyOnce sync.Once
	dummy     []byte
}

// ParseCredentials reads "user:bcrypt-hash" pairs separated by commas, the
// format of TOKEN_USERS.
func ParseCredentials(raw string) (*StaticCredentials, error) {
	creds := &StaticCredentials{hashes: make(map[string][]byte)}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		user, hash, ok := strings.Cut(entry, ":")
		user = strings.TrimSpace(user)
		hash = strings.TrimSpace(hash)
		if !ok || user == "" || hash == "" {
			return nil, fmt.Errorf("malformed credential entry %q", entry)
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("credential for %q: %w", user, err)
		}
		creds.hashes[user] = []byte(hash)
	}
	return creds, nil
}

func (c *StaticCredentials) Len() int {
	return len(c.hashes)
}

func (c *StaticCredentials) Check(username, password string) error {
	hash, ok := c.hashes[username]
	if !ok {
		// Burn a comparison so unknown users cost the same as wrong passwords.
		_ = bcrypt.CompareHashAndPassword(c.dummyHash(), []byte(password))
		return domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return domain.ErrInvalidCredentials
	}
	return nil
}

func (c *StaticCredentials) dummyHash() []byte {
	c.dummyOnce.Do(func() {
		c.dummy, _ = bcrypt.GenerateFromPassword([]byte("ticketgate"), bcrypt.DefaultCost)
	})
	return c.dummy
}
