package migrations

import (
	"fmt"
	"os"
	"path/filepath"
)

var (
	// MigrationsDir can be overridden in tests or by the application
	MigrationsDir = "scripts/migrations"
)

const initialSchemaFile = "001_initial_schema.sql"

// GetInitialSchema returns the exchange history schema. The file is
// searched relative to the working directory and its parents so the
// binary, package tests, and integration tests all resolve it.
func GetInitialSchema() (string, error) {
	searchPaths := []string{
		filepath.Join(MigrationsDir, initialSchemaFile),
		filepath.Join("..", MigrationsDir, initialSchemaFile),
		filepath.Join("..", "..", MigrationsDir, initialSchemaFile),
	}

	for _, path := range searchPaths {
		schemaContent, err := os.ReadFile(path) // #nosec G304 - fixed file name under the migrations dir
		if err == nil {
			return string(schemaContent), nil
		}
	}

	return "", fmt.Errorf("could not find %s under %s", initialSchemaFile, MigrationsDir)
}
