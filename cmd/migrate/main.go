package main

import (
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Standalone migration runner for operating the bridge database
// outside the server process.
func main() {
	if len(os.Args) < 4 {
		log.Fatal("Usage: migrate <migrations-path> <database-url> up|down|version")
	}

	migrationsPath, databaseURL, command := os.Args[1], os.Args[2], os.Args[3]

	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		log.Fatalf("Failed to create migrator: %v", err)
	}

	switch command {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("Migrations applied.")
	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("Migrations rolled back.")
	case "version":
		v, dirty, err := m.Version()
		if err != nil {
			log.Fatalf("Failed to read version: %v", err)
		}
		fmt.Printf("version: %d, dirty: %v\n", v, dirty)
	default:
		log.Fatalf("Unknown command %q", command)
	}
}
