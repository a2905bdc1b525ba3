package database

import (
	"os"
	"path/filepath"
	"testing"
)

func TestImportModelsJSON(t *testing.T) {
	db := newTestDatabase(t)

	export := `{
		"metadata": {"brand": "acura", "city": "toronto", "zip_code": "M5V", "distance": 100, "date": "20250601", "count": 3},
		"models": [
			{"name": "MDX", "value": "m4/d16"},
			{"name": "Integra", "code": "m4/d36", "count": 12},
			{"name": "All Models", "value": ""}
		]
	}`
	path := filepath.Join(t.TempDir(), "acura_toronto_M5V_100km_20250601.json")
	if err := os.WriteFile(path, []byte(export), 0o644); err != nil {
		t.Fatalf("failed to write export: %v", err)
	}

	brand, saved, err := db.ImportModelsJSON(path)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if brand != "acura" || saved != 2 {
		t.Fatalf("expected 2 acura models, got %s/%d", brand, saved)
	}

	// Importing again updates in place
	if _, _, err := db.ImportModelsJSON(path); err != nil {
		t.Fatalf("second import failed: %v", err)
	}
	got, err := db.Models("acura")
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 models after re-import, got %d", len(got))
	}
}

func TestImportModelsJSONRejectsMissingBrand(t *testing.T) {
	db := newTestDatabase(t)
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte(`{"metadata": {}, "models": []}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := db.ImportModelsJSON(path); err == nil {
		t.Fatalf("expected an error for an export without a brand")
	}
}

func TestBackupCurrentData(t *testing.T) {
	dataDir := t.TempDir()
	dbPath := filepath.Join(dataDir, "carscout.db")
	db, err := NewDatabase(dbPath)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer db.Close()

	if err := os.WriteFile(filepath.Join(dataDir, "dead_links.json"), []byte(`{"dead_links":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	backupDir, err := db.BackupCurrentData(dataDir, dbPath)
	if err != nil {
		t.Fatalf("backup failed: %v", err)
	}
	for _, name := range []string{"carscout.db", "dead_links.json"} {
		if _, err := os.Stat(filepath.Join(backupDir, name)); err != nil {
			t.Fatalf("expected %s in backup: %v", name, err)
		}
	}
}
