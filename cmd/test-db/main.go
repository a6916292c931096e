package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"taskharvest/internal/config"
	"taskharvest/internal/database"
	"taskharvest/internal/models"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/test-db/main.go <userID>")
		fmt.Println("Example: go run cmd/test-db/main.go u-123")
		os.Exit(1)
	}
	userID := os.Args[1]

	store, err := database.NewMongoStore(cfg.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("=== Sync state for user %s ===\n\n", userID)

	for _, source := range models.SyncSources {
		cursor, err := store.GetCursor(ctx, userID, source)
		if err != nil {
			log.Fatalf("Failed to read %s cursor: %v", source, err)
		}
		if cursor == nil {
			fmt.Printf("%-10s never synced\n", source)
			continue
		}
		fmt.Printf("%-10s position=%s lastSync=%s lastBatch=%d\n",
			source, cursor.Position, cursor.LastSyncAt.Format(time.RFC3339), cursor.LastBatchSize)
	}

	tasks, err := store.ListTasks(ctx, userID)
	if err != nil {
		log.Fatalf("Failed to list tasks: %v", err)
	}

	fmt.Printf("\n=== Tasks (%d) ===\n\n", len(tasks))
	for _, task := range tasks {
		fmt.Printf("[%s] %-15s p%d %-10s %s\n",
			task.Status, task.Type, task.Priority, task.Source, task.Title)
		if itemID := task.SourceItemID(); itemID != "" {
			fmt.Printf("    from %s\n", itemID)
		}
	}
}
