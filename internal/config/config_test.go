package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 10, cfg.Pool.Width)
	assert.Equal(t, 5*time.Minute, cfg.Sweep.Interval.D())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
http_addr: ":9090"
pool:
  width: 4
sweep:
  interval: 2m
remediation:
  weekday: sun
  time: "03:15"
  timezone: UTC
  run_on_startup: true
delays:
  restart_verify: 30s
classification:
  process_names: [zookeeper]
topology:
  files: [apps.yaml, more.yaml]
executor:
  kind: SSH
  known_hosts: /etc/ssh/ssh_known_hosts
credentials:
  - application: billing
    username: deploy
    password_env: BILLING_PASSWORD
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, ":2112", cfg.MetricsAddr)
	assert.Equal(t, 4, cfg.Pool.Width)
	assert.Equal(t, 60*time.Second, cfg.Pool.ShutdownGrace.D())
	assert.Equal(t, 2*time.Minute, cfg.Sweep.Interval.D())
	assert.True(t, cfg.Remediation.RunOnStartup)
	assert.Equal(t, 30*time.Second, cfg.Delays.RestartVerify.D())
	assert.Equal(t, 5*time.Second, cfg.Delays.GroupStopGap.D())
	assert.Equal(t, []string{"zookeeper"}, cfg.Classification.ProcessNames)
	assert.Equal(t, ExecutorSSH, cfg.Executor.Kind)
	assert.Equal(t, []string{"apps.yaml", "more.yaml"}, cfg.Topology.Files)
	require.Len(t, cfg.Credentials, 1)
	assert.Equal(t, "BILLING_PASSWORD", cfg.Credentials[0].PasswordEnv)

	day, err := ParseWeekday(cfg.Remediation.Weekday)
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, day)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := map[string]string{
		"bad weekday":  "remediation:\n  weekday: someday\n",
		"bad time":     "remediation:\n  time: \"25:99\"\n",
		"bad timezone": "remediation:\n  timezone: Mars/Olympus\n",
		"bad executor": "executor:\n  kind: telnet\n",
		"zero width":   "pool:\n  width: -1\n",
		"no topology":  "topology:\n  files: []\n",
		"bad duration": "sweep:\n  interval: soon\n",
		"credential":   "credentials:\n  - application: billing\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadWrapsValidationErrors(t *testing.T) {
	_, err := Load(writeConfig(t, "executor:\n  kind: telnet\n"))
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "telnet")
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("16:30")
	require.NoError(t, err)
	assert.Equal(t, 16, h)
	assert.Equal(t, 30, m)

	_, _, err = ParseClock("4pm")
	assert.Error(t, err)
}
