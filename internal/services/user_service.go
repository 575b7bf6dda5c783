package services

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// DevelopmentUser stands in for the caller when no identity header is sent.
const DevelopmentUser = "development_user@example.com"

// AccessControl checks caller identities against the allow-list file.
type AccessControl struct {
	usersFile string
	logger    *slog.Logger
}

func NewAccessControl(usersFile string, logger *slog.Logger) *AccessControl {
	return &AccessControl{usersFile: usersFile, logger: logger}
}

// ResolveIdentity returns the caller's identity. raw is nil when the header
// was not sent at all.
func (a *AccessControl) ResolveIdentity(raw *string) (string, error) {
	if raw == nil {
		return DevelopmentUser, nil
	}
	email := *raw
	if !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: malformed identity", ErrForbidden)
	}
	if !a.isAllowed(email) {
		return "", fmt.Errorf("%w: %s is not allow-listed", ErrForbidden, email)
	}
	return email, nil
}

// isAllowed re-reads the users file on every call. Entries are either full
// addresses or "@domain" suffixes.
func (a *AccessControl) isAllowed(email string) bool {
	f, err := os.Open(a.usersFile)
	if errors.Is(err, os.ErrNotExist) {
		a.logger.Warn("file not found", "path", a.usersFile)
		return false
	}
	if err != nil {
		a.logger.Error("cannot read users file", "path", a.usersFile, "error", err)
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry := strings.TrimSpace(scanner.Text())
		if email == entry {
			return true
		}
		if strings.HasPrefix(entry, "@") && strings.HasSuffix(email, entry) {
			return true
		}
	}
	if err := scanner.Err(); err != nil {
		a.logger.Error("cannot read users file", "path", a.usersFile, "error", err)
	}
	return false
}
