// Package telemetryrecord: Mongo-backed archive, mirroring the collection
// wrapper pattern used by the run log and session Mongo clients.
package telemetryrecord

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	defaultCollection = "telemetry_records"
	defaultTimeout    = 5 * time.Second
)

// MongoOptions configures the Mongo-backed archive.
type MongoOptions struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// MongoSink archives Records into a MongoDB collection, indexed for lookup
// by session and by the replay-dedup hash.
type MongoSink struct {
	coll    collection
	timeout time.Duration
}

// NewMongoSink returns a Sink backed by opts.Client. It creates the
// session/hash indexes before returning.
func NewMongoSink(ctx context.Context, opts MongoOptions) (*MongoSink, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	mcoll := opts.Client.Database(opts.Database).Collection(collName)
	wrapper := mongoCollection{coll: mcoll}

	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ensureIndexes(ictx, wrapper); err != nil {
		return nil, err
	}
	return &MongoSink{coll: wrapper, timeout: timeout}, nil
}

// recordDocument is the BSON projection of a Record.
type recordDocument struct {
	Timestamp        time.Time `bson:"ts"`
	RequestID        string    `bson:"request_id"`
	SessionID        string    `bson:"session_id"`
	ActiveTaskID     string    `bson:"active_task_id"`
	Stage            string    `bson:"stage"`
	Event            string    `bson:"event"`
	Context          []byte    `bson:"context,omitempty"`
	PlanExcerpt      string    `bson:"plan_excerpt,omitempty"`
	ArtifactsExcerpt string    `bson:"artifacts_excerpt,omitempty"`
	Limits           []byte    `bson:"limits"`
	Model            string    `bson:"model,omitempty"`
	Hash             string    `bson:"hash"`
}

// Record inserts r into the archive collection.
func (s *MongoSink) Record(ctx context.Context, r Record) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ctxBytes, err := json.Marshal(r.Context)
	if err != nil {
		return err
	}
	limitsBytes, err := json.Marshal(r.Limits)
	if err != nil {
		return err
	}

	doc := recordDocument{
		Timestamp:        r.Timestamp.UTC(),
		RequestID:        r.RequestID,
		SessionID:        r.SessionID,
		ActiveTaskID:     r.ActiveTaskID,
		Stage:            string(r.Stage),
		Event:            string(r.Event),
		Context:          ctxBytes,
		PlanExcerpt:      r.PlanExcerpt,
		ArtifactsExcerpt: r.ArtifactsExcerpt,
		Limits:           limitsBytes,
		Model:            r.Model,
		Hash:             r.Hash,
	}
	_, err = s.coll.InsertOne(ctx, doc)
	return err
}

func (s *MongoSink) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func ensureIndexes(ctx context.Context, coll collection) error {
	models := []mongodriver.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "ts", Value: 1}}},
		{Keys: bson.D{{Key: "hash", Value: 1}}},
	}
	_, err := coll.Indexes().CreateMany(ctx, models)
	return err
}

type collection interface {
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error)
	Indexes() indexView
}

type indexView interface {
	CreateMany(ctx context.Context, models []mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) ([]string, error)
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, document, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateMany(ctx context.Context, models []mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) ([]string, error) {
	return v.view.CreateMany(ctx, models, opts...)
}
