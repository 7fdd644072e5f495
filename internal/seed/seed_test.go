package seed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitSQL_SchemaAndIndexes(t *testing.T) {
	data, err := InitSQL()
	if err != nil {
		t.Fatalf("InitSQL failed: %v", err)
	}

	sql := string(data)

	for _, want := range []string{
		"CREATE TABLE cats",
		"idx_cats_name",
		"idx_cats_breed",
		"weight_kg",
		"adoption_date",
		"INSERT INTO cats",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("init.sql missing %q", want)
		}
	}
}

func TestDockerfile_CopiesSeedScript(t *testing.T) {
	data, err := Dockerfile()
	if err != nil {
		t.Fatalf("Dockerfile failed: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, "FROM postgres") {
		t.Error("Dockerfile does not build from postgres")
	}
	if !strings.Contains(content, "/docker-entrypoint-initdb.d/") {
		t.Error("Dockerfile does not install the seed script into the entrypoint directory")
	}
}

func TestWriteBuildContext(t *testing.T) {
	dir := t.TempDir()

	if err := WriteBuildContext(dir); err != nil {
		t.Fatalf("WriteBuildContext failed: %v", err)
	}

	for _, name := range []string{"init.sql", "Dockerfile"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("Expected %s in build context: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("Expected %s to be non-empty", name)
		}
	}
}
