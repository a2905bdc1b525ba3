package database

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"carscout/internal/models"
)

// modelExport is the on-disk layout of a model collection export.
type modelExport struct {
	Metadata struct {
		Brand    string `json:"brand"`
		City     string `json:"city"`
		ZipCode  string `json:"zip_code"`
		Distance int    `json:"distance"`
		Date     string `json:"date"`
		Count    int    `json:"count"`
	} `json:"metadata"`
	Models []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
		Code  string `json:"code"`
		Count int    `json:"count"`
		URL   string `json:"url"`
	} `json:"models"`
}

// ImportModelsJSON loads a model collection export into the catalog.
// Entries without a make/model path are skipped.
func (d *Database) ImportModelsJSON(path string) (string, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open export file: %w", err)
	}
	defer file.Close()

	var export modelExport
	if err := json.NewDecoder(file).Decode(&export); err != nil {
		return "", 0, fmt.Errorf("failed to decode export: %w", err)
	}
	if export.Metadata.Brand == "" {
		return "", 0, fmt.Errorf("export %s has no brand in metadata", filepath.Base(path))
	}

	collected := time.Now()
	if export.Metadata.Date != "" {
		for _, layout := range []string{"20060102", "2006-01-02"} {
			if t, err := time.Parse(layout, export.Metadata.Date); err == nil {
				collected = t
				break
			}
		}
	}

	records := make([]models.ModelRecord, 0, len(export.Models))
	for _, m := range export.Models {
		code := m.Code
		if code == "" {
			code = m.Value
		}
		records = append(records, models.ModelRecord{
			Brand: export.Metadata.Brand,
			Name:  m.Name,
			Code:  code,
			Count: m.Count,
			URL:   m.URL,
		})
	}

	saved, err := d.SaveModels(export.Metadata.Brand, records, collected)
	if err != nil {
		return export.Metadata.Brand, 0, err
	}
	slog.Info("Imported model export",
		slog.String("brand", export.Metadata.Brand),
		slog.Int("saved", saved),
		slog.Int("skipped", len(records)-saved))
	return export.Metadata.Brand, saved, nil
}

// BackupCurrentData copies the database and dead link file into a
// timestamped directory under dataDir.
func (d *Database) BackupCurrentData(dataDir, dbPath string) (string, error) {
	backupDir := filepath.Join(dataDir, fmt.Sprintf("backup_%d", time.Now().Unix()))
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	// Flush the WAL so the copied file is complete
	if _, err := d.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return "", fmt.Errorf("failed to checkpoint database: %w", err)
	}

	files := []string{dbPath, filepath.Join(dataDir, "dead_links.json")}
	for _, src := range files {
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		dst := filepath.Join(backupDir, filepath.Base(src))
		if err := copyFile(src, dst); err != nil {
			return "", fmt.Errorf("failed to backup %s: %w", filepath.Base(src), err)
		}
	}

	slog.Info("Data backed up", slog.String("dir", backupDir))
	return backupDir, nil
}

// copyFile copies a file from src to dst
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}
