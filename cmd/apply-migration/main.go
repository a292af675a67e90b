package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"meatchain/internal/config"
	"meatchain/pkg/database"

	_ "github.com/lib/pq"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s <migration_file.sql> [more files...]", os.Args[0])
	}

	cfg := config.Load()
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Cannot connect to database: %v", err)
	}
	defer db.Close()

	fmt.Printf("Connected to database: %s\n\n", cfg.Database.Database)

	for _, migrationFile := range os.Args[1:] {
		sqlContent, err := os.ReadFile(migrationFile)
		if err != nil {
			log.Fatalf("Failed to read migration file: %v", err)
		}

		fmt.Printf("Applying %s\n", migrationFile)

		// Split SQL by semicolon and execute each statement.
		// Comment lines are stripped per fragment so a statement preceded
		// by a comment block is not skipped wholesale.
		statements := strings.Split(string(sqlContent), ";")
		executed := 0
		for i, stmt := range statements {
			stmt = stripSQLComments(stmt)
			if stmt == "" {
				continue
			}

			_, err := db.Exec(stmt)
			if err != nil {
				log.Fatalf("Failed to execute statement %d: %v\nStatement: %s", i+1, err, stmt[:min(100, len(stmt))])
			}
			executed++
		}
		fmt.Printf("✅ %s: %d statements executed\n\n", migrationFile, executed)
	}

	fmt.Println("✅ Migration completed successfully!")
}

// stripSQLComments drops "--" comment lines and surrounding whitespace
func stripSQLComments(stmt string) string {
	lines := strings.Split(stmt, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
