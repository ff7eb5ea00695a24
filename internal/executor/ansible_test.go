package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"activator/internal/config"
)

type runCall struct {
	args []string
	env  []string
}

type scriptedRun struct {
	calls   []runCall
	outputs []string
	codes   []int
	errs    []error
}

func (s *scriptedRun) run(_ context.Context, _ string, args, env []string) (string, int, error) {
	i := len(s.calls)
	s.calls = append(s.calls, runCall{args: args, env: env})
	var (
		out  string
		code int
		err  error
	)
	if i < len(s.outputs) {
		out = s.outputs[i]
	}
	if i < len(s.codes) {
		code = s.codes[i]
	}
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return out, code, err
}

func module(args []string) string {
	for i, a := range args {
		if a == "-m" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func newTestAnsible(t *testing.T, run *scriptedRun) *Ansible {
	creds := NewStaticCredentials([]config.Credential{{Application: "billing", Username: "deploy", PasswordEnv: "BILLING_PW"}})
	creds.getenv = func(name string) string {
		if name == "BILLING_PW" {
			return "s3cret"
		}
		return ""
	}
	a := NewAnsible("", creds, zaptest.NewLogger(t).Sugar())
	a.run = run.run
	return a
}

func TestAnsibleLinuxCommand(t *testing.T) {
	run := &scriptedRun{outputs: []string{"pong", "Active: active (running)"}}
	a := newTestAnsible(t, run)

	res, err := a.Execute(context.Background(), "billing", "10.0.0.1", "sudo systemctl status api", "linux")
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.Equal(t, "Active: active (running)", res.Output)

	require.Len(t, run.calls, 2)
	assert.Equal(t, "ping", module(run.calls[0].args))
	shell := run.calls[1].args
	assert.Equal(t, "shell", module(shell))
	assert.Equal(t, []string{"all", "-i", "10.0.0.1,", "-u", "deploy"}, shell[:5])
	assert.Equal(t, "sudo systemctl status api", shell[len(shell)-1])
	assert.Contains(t, strings.Join(shell, " "), "StrictHostKeyChecking=no")
	assert.NotContains(t, strings.Join(shell, " "), "s3cret")
	assert.Contains(t, run.calls[1].env, passwordEnv+"=s3cret")
}

func TestAnsibleWindowsUsesWinRM(t *testing.T) {
	run := &scriptedRun{}
	a := newTestAnsible(t, run)

	_, err := a.Execute(context.Background(), "billing", "10.0.0.2", "sc query W3SVC", "Windows")
	require.NoError(t, err)
	require.Len(t, run.calls, 2)
	assert.Equal(t, "win_ping", module(run.calls[0].args))
	assert.Equal(t, "win_shell", module(run.calls[1].args))
	assert.Contains(t, strings.Join(run.calls[1].args, " "), "ansible_connection=winrm")
}

func TestAnsibleDiagnostics(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		run := &scriptedRun{outputs: []string{"UNREACHABLE!"}, codes: []int{4}}
		res, err := newTestAnsible(t, run).Execute(context.Background(), "billing", "10.0.0.1", "uptime", "linux")
		require.NoError(t, err)
		assert.False(t, res.Succeeded)
		assert.Contains(t, res.Output, "may be unreachable")
		assert.Len(t, run.calls, 1)
	})
	t.Run("command failed", func(t *testing.T) {
		run := &scriptedRun{outputs: []string{"pong", "Unit api.service could not be found."}, codes: []int{0, 2}}
		res, err := newTestAnsible(t, run).Execute(context.Background(), "billing", "10.0.0.1", "systemctl status api", "linux")
		require.NoError(t, err)
		assert.False(t, res.Succeeded)
		assert.Contains(t, res.Output, "Command failed with exit code 2")
		assert.Contains(t, res.Output, "could not be found")
	})
	t.Run("no credentials", func(t *testing.T) {
		run := &scriptedRun{}
		res, err := newTestAnsible(t, run).Execute(context.Background(), "payroll", "10.0.0.9", "uptime", "linux")
		require.NoError(t, err)
		assert.False(t, res.Succeeded)
		assert.Contains(t, res.Output, "Could not retrieve credentials")
		assert.Empty(t, run.calls)
	})
	t.Run("binary missing", func(t *testing.T) {
		run := &scriptedRun{codes: []int{-1}, errs: []error{errors.New("exec: \"ansible\": executable file not found")}}
		res, err := newTestAnsible(t, run).Execute(context.Background(), "billing", "10.0.0.1", "uptime", "linux")
		require.NoError(t, err)
		assert.Contains(t, res.Output, "Ansible command execution failed")
	})
	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		run := &scriptedRun{errs: []error{context.Canceled}}
		_, err := newTestAnsible(t, run).Execute(ctx, "billing", "10.0.0.1", "uptime", "linux")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
