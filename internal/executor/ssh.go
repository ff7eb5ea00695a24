package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"activator/internal/models"
)

// SSH runs commands over a direct SSH session with password authentication.
type SSH struct {
	port           int
	connectTimeout time.Duration
	hostKeys       ssh.HostKeyCallback
	creds          CredentialSource
	log            *zap.SugaredLogger
}

// NewSSH creates an SSH executor. With an empty knownHostsPath host keys are
// not verified.
func NewSSH(port int, connectTimeout time.Duration, knownHostsPath string, creds CredentialSource, log *zap.SugaredLogger) (*SSH, error) {
	hostKeys := ssh.InsecureIgnoreHostKey() // #nosec G106 -- matches StrictHostKeyChecking=no of the ansible transport
	if knownHostsPath != "" {
		cb, err := knownhosts.New(knownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKeys = cb
	}
	if port <= 0 {
		port = 22
	}
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	return &SSH{
		port:           port,
		connectTimeout: connectTimeout,
		hostKeys:       hostKeys,
		creds:          creds,
		log:            log,
	}, nil
}

// Execute implements Executor.
func (s *SSH) Execute(ctx context.Context, application, address, command, osFamily string) (models.ExecResult, error) {
	creds, err := s.creds.Lookup(application, osFamily, address)
	if err != nil {
		return failure(fmt.Sprintf("Could not retrieve credentials for server %s: %v", address, err)), nil
	}

	client, err := s.dial(ctx, address, creds)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.ExecResult{}, ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return failure(fmt.Sprintf("Connection timeout: server %s unreachable: %v", address, err)), nil
		}
		return failure(fmt.Sprintf("Connection test failed: server %s may be unreachable or credentials may be invalid: %v", address, err)), nil
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return failure(fmt.Sprintf("SSH execution failed on %s: %v", address, err)), nil
	}
	defer session.Close()

	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out
	s.log.Debugw("Executing command over ssh", "address", address, "os", osFamily)
	runErr := session.Run(command)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return models.ExecResult{}, ctxErr
	}

	var exitErr *ssh.ExitError
	switch {
	case runErr == nil:
		return models.ExecResult{Succeeded: true, Output: out.String()}, nil
	case errors.As(runErr, &exitErr):
		return failure(fmt.Sprintf("Command failed with exit code %d on %s server.\nDetails:\n%s", exitErr.ExitStatus(), osFamily, out.String())), nil
	default:
		return failure(fmt.Sprintf("SSH execution failed on %s: %v\n%s", address, runErr, out.String())), nil
	}
}

func (s *SSH) dial(ctx context.Context, address string, creds Credentials) (*ssh.Client, error) {
	target := net.JoinHostPort(address, strconv.Itoa(s.port))
	dialer := net.Dialer{Timeout: s.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, err
	}
	cfg := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(creds.Password)},
		HostKeyCallback: s.hostKeys,
		Timeout:         s.connectTimeout,
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, target, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}
