// Package topology loads the application -> environment -> server -> service
// inventory that the sweeper and orchestrator walk.
package topology

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"activator/internal/models"
)

// Provider supplies the current topology. Implementations never fail: a
// malformed inventory yields an empty (or partial) result.
type Provider interface {
	Load() []models.Application
}

// Static serves a fixed topology.
type Static []models.Application

// Load implements Provider.
func (s Static) Load() []models.Application {
	return s
}

type inventoryFile struct {
	Applications []models.Application `yaml:"applications"`
}

// FileProvider reads inventory YAML files on every Load so edits are picked
// up by the next sweep.
type FileProvider struct {
	files []string
	log   *zap.SugaredLogger
}

// NewFileProvider creates a provider over the given inventory files.
func NewFileProvider(files []string, log *zap.SugaredLogger) *FileProvider {
	return &FileProvider{files: files, log: log}
}

// Load implements Provider. Files or entries that fail validation are logged
// and skipped.
func (p *FileProvider) Load() []models.Application {
	var apps []models.Application
	for _, path := range p.files {
		parsed, err := readFile(path)
		if err != nil {
			p.log.Errorw("Skipping inventory file", "file", path, "error", err)
			continue
		}
		for _, app := range parsed {
			valid, problems := Sanitize(app)
			for _, problem := range problems {
				p.log.Warnw("Inventory validation", "file", path, "problem", problem)
			}
			if valid != nil {
				apps = append(apps, *valid)
			}
		}
	}
	return apps
}

func readFile(path string) ([]models.Application, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	var inv inventoryFile
	if err := yaml.Unmarshal(content, &inv); err != nil {
		return nil, fmt.Errorf("parse inventory: %w", err)
	}
	if len(inv.Applications) == 0 {
		return nil, errors.New("no applications defined")
	}
	return inv.Applications, nil
}

// Sanitize drops the parts of app that cannot be monitored: missing names,
// names containing the key separator, servers without an address or OS, and
// duplicate service names on one server. It returns nil if the application
// itself is unusable.
func Sanitize(app models.Application) (*models.Application, []string) {
	var problems []string
	if err := checkName("application", app.Name); err != nil {
		return nil, []string{err.Error()}
	}

	out := models.Application{Name: app.Name}
	for _, env := range app.Environments {
		if err := checkName("environment", env.Name); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", app.Name, err))
			continue
		}
		cleanEnv := models.Environment{Name: env.Name}
		for _, server := range env.Servers {
			where := app.Name + "/" + env.Name
			if err := checkName("server", server.Name); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", where, err))
				continue
			}
			if strings.TrimSpace(server.Address) == "" || strings.TrimSpace(server.OS) == "" {
				problems = append(problems, fmt.Sprintf("%s/%s: server needs ip and os", where, server.Name))
				continue
			}
			cleanServer := server
			cleanServer.Services = nil
			seen := make(map[string]bool)
			for _, svc := range server.Services {
				if err := checkName("service", svc.Name); err != nil {
					problems = append(problems, fmt.Sprintf("%s/%s: %v", where, server.Name, err))
					continue
				}
				if seen[svc.Name] {
					problems = append(problems, fmt.Sprintf("%s/%s: duplicate service %q", where, server.Name, svc.Name))
					continue
				}
				seen[svc.Name] = true
				cleanServer.Services = append(cleanServer.Services, svc)
			}
			cleanEnv.Servers = append(cleanEnv.Servers, cleanServer)
		}
		out.Environments = append(out.Environments, cleanEnv)
	}
	return &out, problems
}

func checkName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%s name is required", kind)
	}
	if strings.Contains(name, models.KeySeparator) {
		return fmt.Errorf("%s name %q contains reserved %q", kind, name, models.KeySeparator)
	}
	return nil
}
