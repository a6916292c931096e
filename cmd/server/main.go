package main

import (
	"log"
	"time"

	"taskharvest/internal/api"
	"taskharvest/internal/config"
	"taskharvest/internal/database"
	"taskharvest/internal/services"
	"taskharvest/internal/sources"
	"taskharvest/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize storage (MongoDB when configured, in-memory otherwise)
	var store storage.Store
	if cfg.MongoDB.URI != "" || cfg.MongoDB.Host != "" {
		log.Printf("Initializing MongoDB connection (Host: %s, Port: %s, Database: %s)",
			cfg.MongoDB.Host, cfg.MongoDB.Port, cfg.MongoDB.Database)
		mongoStore, err := database.NewMongoStore(cfg.MongoDB)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer mongoStore.Close()
		store = mongoStore
	} else {
		log.Printf("WARNING: MongoDB not configured (Host and URI are empty), using in-memory storage")
		store = storage.NewMemoryStore()
	}

	// Initialize source adapters
	adapters := []sources.Adapter{
		sources.NewMailboxAdapter(cfg.Sources.ProcessedLabel),
		sources.NewChatAdapter(cfg.Sources.ChatBaseURL),
		sources.NewWikiAdapter(cfg.Sources.WikiBaseURL),
		sources.NewMeetingAdapter(cfg.Sources.MeetingBaseURL, cfg.Sources.MinTranscriptLen),
		sources.NewCalendarAdapter(cfg.Sources.CalendarID),
	}

	// Initialize services
	extractor := services.NewExtractionService(cfg.OpenAI, time.Duration(cfg.Sync.ExtractTimeout)*time.Second)
	materializer := services.NewMaterializer(store)
	pipeline := services.NewPipelineService(
		store,
		extractor,
		materializer,
		adapters,
		cfg.Sync.Workers,
		time.Duration(cfg.Sync.FetchTimeout)*time.Second,
	)
	analysis := services.NewAnalysisService(store, cfg.OpenAI, time.Duration(cfg.Sync.ExtractTimeout)*time.Second)
	calendarPush := services.NewCalendarPushService(store, cfg.Sources.CalendarID)

	// Initialize handlers
	handlers := api.NewHandlers(pipeline, analysis, calendarPush, store)

	// Setup routes
	router := api.SetupRoutes(handlers, cfg.Auth.JWTSecret)

	// Start server
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
