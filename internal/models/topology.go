package models

import "strings"

// Application is the root of the topology tree.
type Application struct {
	Name         string        `yaml:"name" json:"name"`
	Environments []Environment `yaml:"environments" json:"environments"`
}

// Environment groups the servers of one application stage.
type Environment struct {
	Name    string   `yaml:"name" json:"name"`
	Servers []Server `yaml:"servers" json:"servers"`
}

// Server is a remote host running monitored services.
type Server struct {
	Name     string    `yaml:"name" json:"name"`
	Address  string    `yaml:"ip" json:"address"`
	OS       string    `yaml:"os" json:"os"`
	Services []Service `yaml:"services" json:"services"`
}

// IsWindows reports whether the server's OS family is windows (case-insensitive).
func (s Server) IsWindows() bool {
	return strings.EqualFold(strings.TrimSpace(s.OS), "windows")
}

// Service describes one monitorable unit on a server. Database-typed services
// carry DBType/TNSAlias and are never restarted.
type Service struct {
	Name         string `yaml:"name" json:"name"`
	Type         string `yaml:"type" json:"type"`
	Group        string `yaml:"group,omitempty" json:"group,omitempty"`
	Cmd          string `yaml:"cmd,omitempty" json:"cmd,omitempty"`
	StartupCmd   string `yaml:"startupCmd,omitempty" json:"startup_cmd,omitempty"`
	StatusCmd    string `yaml:"statusCmd,omitempty" json:"status_cmd,omitempty"`
	StopCmd      string `yaml:"stopCmd,omitempty" json:"stop_cmd,omitempty"`
	Script       string `yaml:"script,omitempty" json:"script,omitempty"`
	StartScript  string `yaml:"startScript,omitempty" json:"start_script,omitempty"`
	StatusScript string `yaml:"statusScript,omitempty" json:"status_script,omitempty"`
	StopScript   string `yaml:"stopScript,omitempty" json:"stop_script,omitempty"`
	DBType       string `yaml:"dbType,omitempty" json:"db_type,omitempty"`
	TNSAlias     string `yaml:"tnsAlias,omitempty" json:"tns_alias,omitempty"`
}

// StatusProbe returns the configured status command, preferring the direct
// command over the script path.
func (s Service) StatusProbe() (string, bool) {
	if cmd := strings.TrimSpace(s.StatusCmd); cmd != "" {
		return cmd, true
	}
	if script := strings.TrimSpace(s.StatusScript); script != "" {
		return script, true
	}
	return "", false
}

// Grouped reports whether the service belongs to a coordinated group.
func (s Service) Grouped() bool {
	return strings.TrimSpace(s.Group) != ""
}

// GroupedService is a per-pass snapshot of a group member and its last known status.
type GroupedService struct {
	Key         TargetKey
	Group       string
	Application string
	Environment string
	Server      Server
	Service     Service
	Status      Status
}

// Visit calls fn for every service in the topology, in declaration order.
func Visit(apps []Application, fn func(app Application, env Environment, server Server, svc Service)) {
	for _, app := range apps {
		for _, env := range app.Environments {
			for _, server := range env.Servers {
				for _, svc := range server.Services {
					fn(app, env, server, svc)
				}
			}
		}
	}
}

// Elevate prefixes command with prefix for non-windows servers unless the
// command already starts with it.
func Elevate(command string, server Server, prefix string) string {
	if prefix == "" || server.IsWindows() || strings.HasPrefix(command, prefix) {
		return command
	}
	return prefix + command
}
