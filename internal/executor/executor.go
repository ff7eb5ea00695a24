// Package executor runs commands against remote servers.
//
// Transport and credential problems are not Go errors: they come back as a
// result with Succeeded=false and a diagnostic embedded in the output, so the
// status classifier can see them. A returned error means the executor itself
// could not run (for example a cancelled context).
package executor

import (
	"context"
	"errors"

	"activator/internal/models"
)

// Executor runs command on the server at address on behalf of application.
type Executor interface {
	Execute(ctx context.Context, application, address, command, osFamily string) (models.ExecResult, error)
}

// Func adapts a function to the Executor interface.
type Func func(ctx context.Context, application, address, command, osFamily string) (models.ExecResult, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, application, address, command, osFamily string) (models.ExecResult, error) {
	return f(ctx, application, address, command, osFamily)
}

// ErrNoCredentials is returned by a CredentialSource with no login for a target.
var ErrNoCredentials = errors.New("no credentials configured")

// Credentials is a login for a remote server.
type Credentials struct {
	Username string
	Password string
}

// CredentialSource looks up the login for a target.
type CredentialSource interface {
	Lookup(application, osFamily, address string) (Credentials, error)
}

func failure(output string) models.ExecResult {
	return models.ExecResult{Succeeded: false, Output: output}
}
