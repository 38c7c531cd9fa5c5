package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fixora/condoguard/infrastructure/adapter/postgres"
)

func main() {
	mode := flag.String("mode", "up", "migration mode: up or status")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := postgres.Connect(dsn)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch strings.ToLower(*mode) {
	case "up":
		if err := postgres.NewAuditLogRepository(db).Migrate(ctx); err != nil {
			log.Fatalf("migration up failed: %v", err)
		}
		log.Println("Migration up completed successfully")
	case "status":
		var exists bool
		if err := db.GetContext(ctx, &exists, `SELECT to_regclass('public.audit_logs') IS NOT NULL`); err != nil {
			log.Fatalf("status check failed: %v", err)
		}
		if !exists {
			log.Println("audit_logs: not created")
			return
		}
		var count int64
		if err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM audit_logs`); err != nil {
			log.Fatalf("status check failed: %v", err)
		}
		log.Printf("audit_logs: present, %d entries", count)
	default:
		// audit_logs is append-only; there is no down migration
		log.Fatalf("unknown mode: %s", *mode)
	}
}
