package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"fieldline/internal/domain"
)

const FileName = "fieldline.yml"

// Config models fieldline.yml.
type Config struct {
	Farm struct {
		ID       string `yaml:"id"`
		Name     string `yaml:"name,omitempty"`
		Timezone string `yaml:"timezone,omitempty"`
	} `yaml:"farm"`
	Workers []WorkerEntry `yaml:"workers"`
	RBAC    struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
}

type WorkerEntry struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Role string `yaml:"role,omitempty"`
}

type RBACRole struct {
	Description string   `yaml:"description,omitempty"`
	Permissions []string `yaml:"permissions"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Farm.ID == "" {
		return fmt.Errorf("config.farm.id is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for roleID, role := range c.RBAC.Roles {
		if roleID == "" {
			return fmt.Errorf("config.rbac.roles contains empty role id")
		}
		for _, perm := range role.Permissions {
			if perm == "" {
				return fmt.Errorf("role %s has empty permission id", roleID)
			}
		}
	}
	seen := map[string]bool{}
	for i, w := range c.Workers {
		if w.ID == "" {
			return fmt.Errorf("config.workers[%d].id is required", i)
		}
		if seen[w.ID] {
			return fmt.Errorf("config.workers: duplicate id %s", w.ID)
		}
		seen[w.ID] = true
		if w.Role != "" && len(c.RBAC.Roles) > 0 {
			if _, ok := c.RBAC.Roles[w.Role]; !ok {
				return fmt.Errorf("worker %s references unknown role %s", w.ID, w.Role)
			}
		}
	}
	return nil
}

// Location resolves farm.timezone; empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Farm.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Farm.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config.farm.timezone %q: %w", c.Farm.Timezone, err)
	}
	return loc, nil
}

// Roster returns the configured workers as directory entries. A worker
// without a name is listed under its id.
func (c *Config) Roster() []domain.Worker {
	res := make([]domain.Worker, 0, len(c.Workers))
	for _, w := range c.Workers {
		name := w.Name
		if name == "" {
			name = w.ID
		}
		res = append(res, domain.Worker{ID: w.ID, Name: name, Role: w.Role})
	}
	return res
}

// RolePermissions returns the sorted union of permissions granted by roles.
// Unknown roles grant nothing.
func (c *Config) RolePermissions(roles ...string) []string {
	set := map[string]struct{}{}
	for _, r := range roles {
		role, ok := c.RBAC.Roles[r]
		if !ok {
			continue
		}
		for _, p := range role.Permissions {
			set[p] = struct{}{}
		}
	}
	res := make([]string, 0, len(set))
	for p := range set {
		res = append(res, p)
	}
	sort.Strings(res)
	return res
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads and validates config from the workspace.
func Load(fsys afero.Fs, workspace string) (*Config, error) {
	path := Path(workspace)
	cfg, err := FromFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config %s not found; create one with fl config init", path)
	}
	return cfg, err
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(fsys afero.Fs, workspace string) (*Config, error) {
	cfg, err := FromFile(fsys, Path(workspace))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return cfg, err
}

// FromFile reads YAML config from the given path.
func FromFile(fsys afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GenerateDefault returns default config YAML.
func GenerateDefault(farmID string) string {
	return fmt.Sprintf(defaultTemplate, farmID)
}

// Default returns the default Config struct for a farm.
func Default(farmID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(farmID))).Decode(&cfg)
	return &cfg
}

// WriteDefault creates the workspace config unless one already exists.
func WriteDefault(fsys afero.Fs, workspace, farmID string, force bool) (string, error) {
	path := Path(workspace)
	exists, err := afero.Exists(fsys, path)
	if err != nil {
		return "", err
	}
	if exists && !force {
		return "", fmt.Errorf("config %s already exists (use --force to overwrite)", path)
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, afero.WriteFile(fsys, path, []byte(GenerateDefault(farmID)), 0o644)
}

const defaultTemplate = `farm:
  id: %s
  timezone: UTC

# Worker roster consumed by the worker directory. Edits are picked up by
# "fl worker sync" and live by "fl serve".
workers: []
#  - id: sup1
#    name: Sam Supervisor
#    role: supervisor
#  - id: w1
#    name: Alex Field
#    role: worker

rbac:
  roles:
    supervisor:
      description: "Defines templates, assigns work and verifies completion"
      permissions:
        - template.read
        - template.write
        - assignment.read
        - assignment.create
        - assignment.toggle
        - assignment.toggle.any
        - assignment.verify
        - stats.read
        - events.read
        - worker.read
    worker:
      description: "Completes assigned work"
      permissions:
        - template.read
        - assignment.read
        - assignment.toggle
        - stats.read
        - worker.read
`
