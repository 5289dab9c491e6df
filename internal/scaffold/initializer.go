// Package scaffold writes a starter hub configuration.
package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/vigil/internal/config"
)

//go:embed templates/vigil.yml
var templatesFS embed.FS

// ErrExists is returned when the target file exists and force is not set.
type ErrExists struct {
	Path string
}

func (e *ErrExists) Error() string {
	return fmt.Sprintf("%s already exists", e.Path)
}

// Template returns the starter vigil.yml.
func Template() []byte {
	data, err := templatesFS.ReadFile("templates/vigil.yml")
	if err != nil {
		panic(fmt.Sprintf("embedded template missing: %v", err))
	}
	return data
}

// Initialize writes the starter configuration to path. An existing file is
// only replaced when force is set. The written file is loaded back to make
// sure the hub will accept it.
func Initialize(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return &ErrExists{Path: path}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, Template(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if _, err := config.Load(path); err != nil {
		return fmt.Errorf("generated configuration is invalid: %w", err)
	}

	return nil
}
