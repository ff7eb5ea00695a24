package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetKeyParts(t *testing.T) {
	key := MakeKey("billing", "prod", "srv-01", "kafka-M")
	assert.Equal(t, TargetKey("billing|prod|srv-01|kafka-M"), key)

	app, env, server, service, err := key.Parts()
	require.NoError(t, err)
	assert.Equal(t, []string{"billing", "prod", "srv-01", "kafka-M"}, []string{app, env, server, service})

	_, _, _, _, err = TargetKey("billing|prod").Parts()
	assert.Error(t, err)
}

func TestElevate(t *testing.T) {
	linux := Server{Name: "srv-01", OS: "linux"}
	windows := Server{Name: "win-01", OS: "Windows"}

	assert.Equal(t, "sudo systemctl status app", Elevate("systemctl status app", linux, "sudo "))
	assert.Equal(t, "sudo systemctl status app", Elevate("sudo systemctl status app", linux, "sudo "))
	assert.Equal(t, "sc query app", Elevate("sc query app", windows, "sudo "))
	assert.Equal(t, "systemctl status app", Elevate("systemctl status app", linux, ""))
}

func TestStatusProbePrefersCommand(t *testing.T) {
	cmd, ok := Service{StatusCmd: " systemctl status app ", StatusScript: "/opt/app/status.sh"}.StatusProbe()
	assert.True(t, ok)
	assert.Equal(t, "systemctl status app", cmd)

	cmd, ok = Service{StatusScript: "/opt/app/status.sh"}.StatusProbe()
	assert.True(t, ok)
	assert.Equal(t, "/opt/app/status.sh", cmd)

	_, ok = Service{StatusCmd: "   "}.StatusProbe()
	assert.False(t, ok)
}

func TestExecResultText(t *testing.T) {
	assert.Equal(t, "SUCCESS: active (running)", ExecResult{Succeeded: true, Output: "active (running)"}.Text())
	assert.Equal(t, "ERROR: exit 3", ExecResult{Output: "exit 3"}.Text())
}

func TestVisitOrder(t *testing.T) {
	apps := []Application{{
		Name: "a",
		Environments: []Environment{{
			Name: "e",
			Servers: []Server{
				{Name: "s1", Services: []Service{{Name: "x"}, {Name: "y"}}},
				{Name: "s2", Services: []Service{{Name: "z"}}},
			},
		}},
	}}
	var keys []TargetKey
	Visit(apps, func(app Application, env Environment, server Server, svc Service) {
		keys = append(keys, MakeKey(app.Name, env.Name, server.Name, svc.Name))
	})
	assert.Equal(t, []TargetKey{"a|e|s1|x", "a|e|s1|y", "a|e|s2|z"}, keys)
}
