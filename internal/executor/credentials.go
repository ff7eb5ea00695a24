package executor

import (
	"fmt"
	"os"
	"strings"

	"activator/internal/config"
)

// StaticCredentials resolves logins from configuration; passwords come from
// environment variables so they never sit in the config file.
type StaticCredentials struct {
	entries []config.Credential
	getenv  func(string) string
}

// NewStaticCredentials builds a source over the configured credentials.
func NewStaticCredentials(entries []config.Credential) *StaticCredentials {
	return &StaticCredentials{entries: entries, getenv: os.Getenv}
}

// Lookup returns the first entry matching application and, when the entry
// names one, the OS family.
func (s *StaticCredentials) Lookup(application, osFamily, address string) (Credentials, error) {
	for _, e := range s.entries {
		if !strings.EqualFold(e.Application, application) {
			continue
		}
		if e.OS != "" && !strings.EqualFold(e.OS, osFamily) {
			continue
		}
		password := s.getenv(e.PasswordEnv)
		if password == "" {
			return Credentials{}, fmt.Errorf("%w: password variable %q is empty for server %s", ErrNoCredentials, e.PasswordEnv, address)
		}
		return Credentials{Username: e.Username, Password: password}, nil
	}
	return Credentials{}, fmt.Errorf("%w: application %s on server %s", ErrNoCredentials, application, address)
}
