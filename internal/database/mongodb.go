package database

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"taskharvest/internal/config"
	"taskharvest/internal/models"
)

// MongoStore implements storage.Store on MongoDB.
type MongoStore struct {
	client              *mongo.Client
	database            *mongo.Database
	tasksCollection     *mongo.Collection
	cursorsCollection   *mongo.Collection
	processedCollection *mongo.Collection
}

// cursorDoc is a sync cursor document; _id is "userId:source".
type cursorDoc struct {
	ID            string            `bson:"_id"`
	UserID        string            `bson:"userId"`
	Source        models.TaskSource `bson:"source"`
	Position      string            `bson:"position"`
	LastSyncAt    time.Time         `bson:"lastSyncAt"`
	LastBatchSize int               `bson:"lastBatchSize"`
}

// processedDoc is a processed-item document; _id is "userId:source:itemId"
// so the insert itself is the uniqueness guard.
type processedDoc struct {
	ID           string            `bson:"_id"`
	UserID       string            `bson:"userId"`
	Source       models.TaskSource `bson:"source"`
	SourceItemID string            `bson:"sourceItemId"`
	ProcessedAt  time.Time         `bson:"processedAt"`
	TaskIDs      []string          `bson:"taskIds,omitempty"`
}

func cursorDocID(userID string, source models.TaskSource) string {
	return userID + ":" + string(source)
}

func processedDocID(userID string, source models.TaskSource, itemID string) string {
	return userID + ":" + string(source) + ":" + itemID
}

// NewMongoStore creates a new MongoDB-backed store
func NewMongoStore(cfg config.MongoDBConfig) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Build connection URI
	uri := cfg.URI
	if uri == "" {
		// Build URI from components if URI not provided
		if cfg.Username != "" && cfg.Password != "" {
			// Use url.UserPassword to properly encode username and password
			userInfo := url.UserPassword(cfg.Username, cfg.Password)
			uri = fmt.Sprintf("mongodb://%s@%s:%s/%s?authSource=%s",
				userInfo.String(),
				cfg.Host,
				cfg.Port,
				cfg.Database,
				url.QueryEscape(cfg.AuthSource),
			)
		} else {
			uri = fmt.Sprintf("mongodb://%s:%s/%s",
				cfg.Host,
				cfg.Port,
				cfg.Database,
			)
		}
	}

	// Log connection attempt (mask password)
	logURI := uri
	if cfg.Password != "" && cfg.Username != "" {
		logURI = fmt.Sprintf("mongodb://%s:***@%s:%s/%s?authSource=%s",
			cfg.Username, cfg.Host, cfg.Port, cfg.Database, url.QueryEscape(cfg.AuthSource))
	}
	log.Printf("Attempting to connect to MongoDB at %s", logURI)

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB at %s: %w", logURI, err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB at %s: %w", logURI, err)
	}

	database := client.Database(cfg.Database)
	store := &MongoStore{
		client:              client,
		database:            database,
		tasksCollection:     database.Collection("tasks"),
		cursorsCollection:   database.Collection("sync_cursors"),
		processedCollection: database.Collection("processed_items"),
	}

	// Index tasks by owner and by provenance for lookup speed. Dedup
	// correctness does not depend on these indexes; the processed-items
	// guard is checked first in the pipeline.
	taskIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "source", Value: 1}, {Key: "metadata.sourceItemId", Value: 1}}},
	}
	if _, err := store.tasksCollection.Indexes().CreateMany(ctx, taskIndexes); err != nil {
		// Index might already exist, that's okay
		log.Printf("Note: MongoDB tasks index creation: %v", err)
	}

	return store, nil
}

// Close closes the MongoDB client connection
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// InsertTask stores a new task document.
func (s *MongoStore) InsertTask(ctx context.Context, task *models.Task) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := s.tasksCollection.InsertOne(ctx, task); err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// ListTasks returns all tasks for a user.
func (s *MongoStore) ListTasks(ctx context.Context, userID string) ([]models.Task, error) {
	return s.findTasks(ctx, bson.M{"userId": userID})
}

// ListOpenTasks returns tasks that are neither done nor cancelled.
func (s *MongoStore) ListOpenTasks(ctx context.Context, userID string) ([]models.Task, error) {
	filter := bson.M{
		"userId": userID,
		"status": bson.M{"$nin": bson.A{models.StatusDone, models.StatusCancelled}},
	}
	return s.findTasks(ctx, filter)
}

// FindTasksBySourceItem returns tasks created from one source item.
func (s *MongoStore) FindTasksBySourceItem(ctx context.Context, userID string, source models.TaskSource, sourceItemID string) ([]models.Task, error) {
	filter := bson.M{
		"userId":                userID,
		"source":                source,
		"metadata.sourceItemId": sourceItemID,
	}
	return s.findTasks(ctx, filter)
}

func (s *MongoStore) findTasks(ctx context.Context, filter bson.M) ([]models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := s.tasksCollection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []models.Task
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}
	return tasks, nil
}

// SetTaskMetadata sets one metadata key on a task.
func (s *MongoStore) SetTaskMetadata(ctx context.Context, taskID, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"metadata." + key: value,
		"updatedAt":       time.Now().UTC(),
	}}
	result, err := s.tasksCollection.UpdateOne(ctx, bson.M{"_id": taskID}, update)
	if err != nil {
		return fmt.Errorf("failed to update task metadata: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("task not found: %s", taskID)
	}
	return nil
}

// GetCursor retrieves the sync cursor for a user+source, or nil.
func (s *MongoStore) GetCursor(ctx context.Context, userID string, source models.TaskSource) (*models.SyncCursor, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc cursorDoc
	err := s.cursorsCollection.FindOne(ctx, bson.M{"_id": cursorDocID(userID, source)}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil // First sync for this user+source
		}
		return nil, fmt.Errorf("failed to query sync cursor: %w", err)
	}

	return &models.SyncCursor{
		UserID:        doc.UserID,
		Source:        doc.Source,
		Position:      doc.Position,
		LastSyncAt:    doc.LastSyncAt,
		LastBatchSize: doc.LastBatchSize,
	}, nil
}

// AdvanceCursor records a batch. The position only moves forward; sync
// stats update on every batch including zero-result ones, so retries never
// restart from the beginning.
func (s *MongoStore) AdvanceCursor(ctx context.Context, userID string, source models.TaskSource, position string, batchSize int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	id := cursorDocID(userID, source)
	now := time.Now().UTC()

	var existing cursorDoc
	err := s.cursorsCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&existing)
	if err != nil && err != mongo.ErrNoDocuments {
		return fmt.Errorf("failed to read sync cursor: %w", err)
	}
	if err == nil && existing.Position > position {
		// Out-of-order or conservative batch; keep the stored position.
		position = existing.Position
	}

	doc := cursorDoc{
		ID:            id,
		UserID:        userID,
		Source:        source,
		Position:      position,
		LastSyncAt:    now,
		LastBatchSize: batchSize,
	}
	opts := options.Update().SetUpsert(true)
	if _, err := s.cursorsCollection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": doc}, opts); err != nil {
		return fmt.Errorf("failed to advance sync cursor: %w", err)
	}
	return nil
}

// IsProcessed returns the processed record for an item, or nil.
func (s *MongoStore) IsProcessed(ctx context.Context, userID string, source models.TaskSource, sourceItemID string) (*models.ProcessedItem, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc processedDoc
	err := s.processedCollection.FindOne(ctx, bson.M{"_id": processedDocID(userID, source, sourceItemID)}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query processed item: %w", err)
	}

	return &models.ProcessedItem{
		UserID:       doc.UserID,
		Source:       doc.Source,
		SourceItemID: doc.SourceItemID,
		ProcessedAt:  doc.ProcessedAt,
		TaskIDs:      doc.TaskIDs,
	}, nil
}

// MarkProcessed records an item as evaluated. $setOnInsert makes the write
// first-write-wins: concurrent markers for the same item converge.
func (s *MongoStore) MarkProcessed(ctx context.Context, record *models.ProcessedItem) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	processedAt := record.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}
	doc := processedDoc{
		ID:           processedDocID(record.UserID, record.Source, record.SourceItemID),
		UserID:       record.UserID,
		Source:       record.Source,
		SourceItemID: record.SourceItemID,
		ProcessedAt:  processedAt,
		TaskIDs:      record.TaskIDs,
	}

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"_id": doc.ID}
	update := bson.M{"$setOnInsert": doc}
	if _, err := s.processedCollection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to mark item processed: %w", err)
	}
	return nil
}
