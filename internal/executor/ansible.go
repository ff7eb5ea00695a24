package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"activator/internal/models"
)

const passwordEnv = "ACTIVATOR_REMOTE_PASSWORD"

// runFunc runs a local binary and returns its combined output and exit code.
type runFunc func(ctx context.Context, binary string, args, env []string) (output string, exitCode int, err error)

// Ansible runs commands through ad-hoc ansible invocations: shell over SSH for
// linux targets, win_shell over WinRM for windows targets. Each command is
// preceded by a ping to tell unreachable hosts apart from failing commands.
type Ansible struct {
	binary string
	creds  CredentialSource
	log    *zap.SugaredLogger
	run    runFunc
}

// NewAnsible creates an executor invoking binary (usually "ansible").
func NewAnsible(binary string, creds CredentialSource, log *zap.SugaredLogger) *Ansible {
	if binary == "" {
		binary = "ansible"
	}
	return &Ansible{binary: binary, creds: creds, log: log, run: runLocal}
}

// Execute implements Executor.
func (a *Ansible) Execute(ctx context.Context, application, address, command, osFamily string) (models.ExecResult, error) {
	creds, err := a.creds.Lookup(application, osFamily, address)
	if err != nil {
		return failure(fmt.Sprintf("Could not retrieve credentials for server %s: %v", address, err)), nil
	}
	windows := strings.EqualFold(osFamily, "windows")
	env := append(os.Environ(), passwordEnv+"="+creds.Password)

	pingOut, code, err := a.run(ctx, a.binary, a.pingArgs(address, creds.Username, windows), env)
	if err != nil {
		return a.runError(ctx, address, err)
	}
	if code != 0 {
		a.log.Warnw("Connection test failed", "address", address, "os", osFamily, "exit_code", code)
		return failure(fmt.Sprintf("Connection test failed with exit code %d. Server %s may be unreachable or credentials may be invalid.\n%s",
			code, address, pingOut)), nil
	}

	a.log.Debugw("Executing command", "address", address, "os", osFamily)
	out, code, err := a.run(ctx, a.binary, a.shellArgs(address, creds.Username, command, windows), env)
	if err != nil {
		return a.runError(ctx, address, err)
	}
	if code != 0 {
		return failure(fmt.Sprintf("Command failed with exit code %d on %s server.\nDetails:\n%s", code, osFamily, out)), nil
	}
	return models.ExecResult{Succeeded: true, Output: out}, nil
}

func (a *Ansible) runError(ctx context.Context, address string, err error) (models.ExecResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return models.ExecResult{}, ctxErr
	}
	return failure(fmt.Sprintf("Ansible command execution failed for %s: %v", address, err)), nil
}

func (a *Ansible) baseArgs(address, user string, windows bool) []string {
	vars := "ansible_password={{ lookup('env', '" + passwordEnv + "') }}"
	if windows {
		vars += " ansible_connection=winrm ansible_winrm_transport=ntlm ansible_port=5986" +
			" ansible_winrm_server_cert_validation=ignore" +
			" ansible_winrm_operation_timeout_sec=280 ansible_winrm_read_timeout_sec=300"
	}
	args := []string{"all", "-i", address + ",", "-u", user, "--extra-vars", vars}
	if !windows {
		args = append(args, "--ssh-common-args",
			"-o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null -o PreferredAuthentications=password -o ConnectTimeout=30")
	}
	return args
}

func (a *Ansible) pingArgs(address, user string, windows bool) []string {
	module := "ping"
	if windows {
		module = "win_ping"
	}
	return append(a.baseArgs(address, user, windows), "-m", module)
}

func (a *Ansible) shellArgs(address, user, command string, windows bool) []string {
	module := "shell"
	if windows {
		module = "win_shell"
	}
	return append(a.baseArgs(address, user, windows), "-m", module, "-a", command)
}

func runLocal(ctx context.Context, binary string, args, env []string) (string, int, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = env
	out, err := cmd.CombinedOutput()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return string(out), exitErr.ExitCode(), nil
	}
	if err != nil {
		return string(out), -1, err
	}
	return string(out), 0, nil
}
