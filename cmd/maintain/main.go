package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"carscout/internal/browser"
	"carscout/internal/cache"
	"carscout/internal/config"
	"carscout/internal/database"
	"carscout/internal/logger"
)

func main() {
	fmt.Println("🗃️  CarScout Maintenance Tool")
	fmt.Println("============================")

	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/maintain/main.go <command> [args]")
		fmt.Println("Commands:")
		fmt.Println("  init            - Create the database with the current schema")
		fmt.Println("  status          - Show schema version and stored data")
		fmt.Println("  import-models   - Import a model catalog JSON export")
		fmt.Println("  new-profile     - Create an empty browser profile and print its id")
		fmt.Println("  prune-profiles  - Delete browser profiles older than PROFILE_MAX_AGE_DAYS")
		fmt.Println("  prune-listings  - Delete listings not seen for LISTING_MAX_AGE_DAYS")
		fmt.Println("  dead-links      - List links marked dead")
		fmt.Println("  backup          - Copy the database and dead link cache to a backup folder")
		os.Exit(1)
	}

	cfg := config.Load()
	logger.Init(os.Stderr, cfg.LogLevel)

	db, err := database.NewDatabase(cfg.DBPath)
	if err != nil {
		fail("Failed to open database", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "init":
		version, err := db.SchemaVersion()
		if err != nil {
			fail("Failed to read schema version", err)
		}
		fmt.Printf("✅ Database ready at %s (schema %s)\n", cfg.DBPath, version)
	case "status":
		showStatus(db, cfg)
	case "import-models":
		if len(os.Args) < 3 {
			fail("import-models needs a JSON file path", nil)
		}
		brand, saved, err := db.ImportModelsJSON(os.Args[2])
		if err != nil {
			fail("Failed to import models", err)
		}
		fmt.Printf("✅ Imported %d %s models\n", saved, brand)
	case "new-profile":
		now := time.Now()
		id := browser.NewProfileID(cfg.ProfilePrefix, now, rand.New(rand.NewSource(now.UnixNano())))
		if err := os.MkdirAll(browser.ProfilePath(cfg.ProfileDir, id), 0755); err != nil {
			fail("Failed to create profile", err)
		}
		fmt.Printf("✅ Created profile %s\n", id)
	case "prune-profiles":
		removed, err := browser.PruneProfiles(cfg.ProfileDir, cfg.ProfileMaxAge, time.Now())
		if err != nil {
			fail("Failed to prune profiles", err)
		}
		for _, name := range removed {
			fmt.Printf("🧹 removed %s\n", name)
		}
		fmt.Printf("✅ Removed %d profiles\n", len(removed))
	case "prune-listings":
		n, err := db.PruneListings(time.Now().Add(-cfg.ListingMaxAge))
		if err != nil {
			fail("Failed to prune listings", err)
		}
		fmt.Printf("✅ Removed %d listings\n", n)
	case "dead-links":
		links, err := cache.NewFileStore(cfg.DataDir, 0, slog.Default()).List(context.Background())
		if err != nil {
			fail("Failed to list dead links", err)
		}
		for _, l := range links {
			fmt.Println(l)
		}
		fmt.Printf("📋 %d dead links\n", len(links))
	case "backup":
		dir, err := db.BackupCurrentData(cfg.DataDir, cfg.DBPath)
		if err != nil {
			fail("Backup failed", err)
		}
		fmt.Printf("✅ Backup written to %s\n", dir)
	default:
		fail("Unknown command: "+os.Args[1], nil)
	}
}

func showStatus(db *database.Database, cfg config.Config) {
	fmt.Println("Status Report")
	fmt.Println("=============")

	version, err := db.SchemaVersion()
	if err != nil {
		fmt.Printf("❌ Error checking schema version: %v\n", err)
		return
	}
	fmt.Printf("📊 Schema Version: %s\n", version)

	stats, err := db.RunStats()
	if err != nil {
		fmt.Printf("❌ Error reading stats: %v\n", err)
		return
	}
	fmt.Printf("📋 runs: %d (%d completed, %d failed)\n", stats.Runs, stats.Completed, stats.Failed)
	fmt.Printf("📋 listings: %d\n", stats.Listings)
	fmt.Printf("📋 models: %d\n", stats.Models)
	if stats.LastRun != nil {
		fmt.Printf("🕒 last run: %s\n", stats.LastRun.Format(time.RFC3339))
	}

	if stat, err := os.Stat(cfg.DBPath); err == nil {
		fmt.Printf("💾 Database size: %.2f KB\n", float64(stat.Size())/1024)
	}
}

func fail(msg string, err error) {
	if err != nil {
		slog.Error(msg, slog.String("error", err.Error()))
	} else {
		slog.Error(msg)
	}
	os.Exit(1)
}
