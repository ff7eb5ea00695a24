package models

import (
	"fmt"
	"strings"
)

// KeySeparator joins the components of a target key. Names containing it are
// rejected when the topology is loaded.
const KeySeparator = "|"

// Status is the health classification of a single target.
type Status string

const (
	StatusUp      Status = "up"
	StatusDown    Status = "down"
	StatusUnknown Status = "unknown"
)

// TargetKey identifies one (application, environment, server, service) tuple.
type TargetKey string

// MakeKey flattens the four target components into a TargetKey.
func MakeKey(app, env, server, service string) TargetKey {
	return TargetKey(strings.Join([]string{app, env, server, service}, KeySeparator))
}

// Parts splits the key back into application, environment, server and service.
func (k TargetKey) Parts() (app, env, server, service string, err error) {
	parts := strings.Split(string(k), KeySeparator)
	if len(parts) != 4 {
		return "", "", "", "", fmt.Errorf("malformed target key %q", string(k))
	}
	return parts[0], parts[1], parts[2], parts[3], nil
}

func (k TargetKey) String() string {
	return string(k)
}

// ExecResult is the text outcome of a remote command.
type ExecResult struct {
	Succeeded bool   `json:"succeeded"`
	Output    string `json:"output"`
}

// Text renders the result the way remediation outcomes and the classifier see it.
func (r ExecResult) Text() string {
	if r.Succeeded {
		return "SUCCESS: " + r.Output
	}
	return "ERROR: " + r.Output
}
