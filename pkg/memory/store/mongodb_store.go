package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Protocol-Lattice/meeting-agent/pkg/memory"
)

const mongoCloseTimeout = 5 * time.Second

// MongoStore archives completed conversation turns in a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ memory.TranscriptArchive = (*MongoStore)(nil)

// NewMongoStore connects, pings and ensures the (user_id, created_at) index.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if collection == "" {
		return nil, errors.New("mongo collection name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoStore{client: client, collection: coll}, nil
}

type turnDocument struct {
	UserID     string            `bson:"user_id"`
	SessionID  string            `bson:"session_id"`
	User       string            `bson:"user"`
	Assistant  string            `bson:"assistant"`
	ToolCalls  []memory.ToolCall `bson:"tool_calls,omitempty"`
	DurationMS int64             `bson:"duration_ms"`
	CreatedAt  time.Time         `bson:"created_at"`
}

func newTurnDocument(turn memory.Turn) turnDocument {
	created := turn.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return turnDocument{
		UserID:     turn.UserID,
		SessionID:  turn.SessionID,
		User:       turn.User,
		Assistant:  turn.Assistant,
		ToolCalls:  turn.ToolCalls,
		DurationMS: turn.Duration.Milliseconds(),
		CreatedAt:  created,
	}
}

func (d turnDocument) toTurn() memory.Turn {
	return memory.Turn{
		UserID:    d.UserID,
		SessionID: d.SessionID,
		User:      d.User,
		Assistant: d.Assistant,
		ToolCalls: d.ToolCalls,
		Duration:  time.Duration(d.DurationMS) * time.Millisecond,
		CreatedAt: d.CreatedAt,
	}
}

// ArchiveTurn inserts one turn document.
func (ms *MongoStore) ArchiveTurn(ctx context.Context, turn memory.Turn) error {
	if ms == nil || ms.collection == nil {
		return nil
	}
	_, err := ms.collection.InsertOne(ctx, newTurnDocument(turn))
	return err
}

// RecentTurns returns up to limit turns of userID, newest first.
func (ms *MongoStore) RecentTurns(ctx context.Context, userID string, limit int) ([]memory.Turn, error) {
	if ms == nil || ms.collection == nil || limit <= 0 {
		return nil, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cur, err := ms.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var turns []memory.Turn
	for cur.Next(ctx) {
		var doc turnDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		turns = append(turns, doc.toTurn())
	}
	return turns, cur.Err()
}

// Close disconnects the client.
func (ms *MongoStore) Close(ctx context.Context) error {
	if ms == nil || ms.client == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, mongoCloseTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}
