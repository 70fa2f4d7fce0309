package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"

	"chatbridge/internal/migrations"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbPath := flag.String("db", "./history.db", "Path to the history database file")
	flag.Parse()

	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Create migrations table if it doesn't exist
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		log.Fatalf("Failed to create migrations table: %v", err)
	}

	// Check if migration 1 is already applied
	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = 1").Scan(&count)
	if err != nil {
		log.Fatalf("Failed to check migration status: %v", err)
	}

	if count > 0 {
		fmt.Println("Migration 1 already applied, skipping...")
		return
	}

	schema, err := migrations.GetInitialSchema()
	if err != nil {
		log.Fatalf("Failed to load initial schema: %v", err)
	}

	fmt.Println("Applying migration 1: Create exchange history schema")

	if _, err := db.Exec(schema); err != nil {
		log.Fatalf("Failed to apply initial schema: %v", err)
	}
	if _, err := db.Exec("INSERT INTO schema_migrations (version) VALUES (1)"); err != nil {
		log.Fatalf("Failed to record migration: %v", err)
	}

	fmt.Println("Migration 1 applied successfully")
	fmt.Println("Database schema is current. You can now start chatbridge.")
}
