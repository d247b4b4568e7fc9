package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// StaticFileName is the human-authored configuration file.
	StaticFileName = "a365.yaml"
	// DynamicDirName holds the CLI-managed layer.
	DynamicDirName = ".a365"
	// DynamicFileName is the CLI-managed state file inside DynamicDirName.
	DynamicFileName = "state.yaml"
)

// Store reads and writes the two configuration layers for one project
// directory. The dynamic layer is persisted after every pipeline step so an
// interrupted run can resume.
type Store struct {
	dir      string
	validate *validator.Validate
}

// NewStore returns a store rooted at the given project directory.
func NewStore(dir string) *Store {
	return &Store{
		dir:      dir,
		validate: validator.New(),
	}
}

func (s *Store) staticPath() string {
	return filepath.Join(s.dir, StaticFileName)
}

func (s *Store) dynamicPath() string {
	return filepath.Join(s.dir, DynamicDirName, DynamicFileName)
}

// Load reads both layers and merges them. A missing dynamic layer is valid
// (fresh project); a missing static layer is an error.
func (s *Store) Load() (*Config, error) {
	raw, err := os.ReadFile(s.staticPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.staticPath(), err)
	}

	var static Static
	if err := yaml.Unmarshal(raw, &static); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.staticPath(), err)
	}
	if static.RuntimeStack == "" {
		static.RuntimeStack = "NODE|20-lts"
	}
	if static.PlanSKU == "" {
		static.PlanSKU = "B1"
	}
	if err := s.validate.Struct(&static); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", s.staticPath(), err)
	}

	var dynamic Dynamic
	if raw, err := os.ReadFile(s.dynamicPath()); err == nil {
		if err := yaml.Unmarshal(raw, &dynamic); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", s.dynamicPath(), err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", s.dynamicPath(), err)
	}

	if dynamic.ClientSecret != "" {
		secret, err := DecryptSecret(dynamic.ClientSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to load client secret: %w", err)
		}
		dynamic.ClientSecret = secret
	}

	return Merge(static, dynamic), nil
}

// Save persists the dynamic layer. The static layer is never written.
func (s *Store) Save(cfg *Config) error {
	dynamic := Split(cfg)

	if dynamic.ClientSecret != "" {
		protected, err := EncryptSecret(dynamic.ClientSecret)
		if err != nil {
			return fmt.Errorf("failed to protect client secret: %w", err)
		}
		dynamic.ClientSecret = protected
	}

	if err := os.MkdirAll(filepath.Dir(s.dynamicPath()), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	raw, err := yaml.Marshal(&dynamic)
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}
	if err := os.WriteFile(s.dynamicPath(), raw, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.dynamicPath(), err)
	}
	return nil
}

// Lock acquires a file lock on the dynamic layer to prevent two concurrent
// runs against the same project.
func (s *Store) Lock() error {
	lockPath := s.lockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	if info, err := os.Stat(lockPath); err == nil {
		// A lock older than 10 minutes is considered stale.
		if time.Since(info.ModTime()) > 10*time.Minute {
			os.Remove(lockPath)
		} else {
			return fmt.Errorf("project is locked by another a365ctl run (lock file: %s). "+
				"If this is an error, remove the lock file manually", lockPath)
		}
	}

	content := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	return nil
}

// Unlock releases the project lock.
func (s *Store) Unlock() error {
	if err := os.Remove(s.lockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (s *Store) lockPath() string {
	return s.dynamicPath() + ".lock"
}
