// Package seed carries the static schema-plus-data artifact baked into the
// published database image. The SQL is configuration data consumed by the
// postgres entrypoint at first startup, not logic.
package seed

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed assets/init.sql assets/Dockerfile
var assets embed.FS

// InitSQL returns the schema and seed rows executed at first container
// startup.
func InitSQL() ([]byte, error) {
	return assets.ReadFile("assets/init.sql")
}

// Dockerfile returns the image definition for the seeded database.
func Dockerfile() ([]byte, error) {
	return assets.ReadFile("assets/Dockerfile")
}

// WriteBuildContext materializes the embedded assets into dir so the image
// builder can tar them up. The directory is created if needed.
func WriteBuildContext(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create build context directory: %w", err)
	}

	for _, name := range []string{"init.sql", "Dockerfile"} {
		data, err := assets.ReadFile("assets/" + name)
		if err != nil {
			return fmt.Errorf("failed to read embedded asset %s: %w", name, err)
		}

		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	return nil
}
