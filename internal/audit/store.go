// Package audit keeps the append-only trail of verification attempts. The
// trail is operational metadata, not integrity ground truth: losing it never
// affects a verdict, so every caller treats writes as best-effort.
package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const attemptsCollection = "verification_attempts"

// Attempt is one verification request and its outcome.
type Attempt struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	VerifierID       string             `bson:"verifier_id,omitempty" json:"verifier_id,omitempty"`
	CertificateID    string             `bson:"certificate_id,omitempty" json:"certificate_id,omitempty"`
	Fingerprint      string             `bson:"fingerprint,omitempty" json:"fingerprint,omitempty"`
	StudentName      string             `bson:"student_name" json:"student_name"`
	RollNumber       string             `bson:"roll_number" json:"roll_number"`
	CourseName       string             `bson:"course_name" json:"course_name"`
	Tier             string             `bson:"tier" json:"tier"`
	Confidence       string             `bson:"confidence" json:"confidence"`
	FactorsMatched   int                `bson:"factors_matched" json:"factors_matched"`
	FactorsTotal     int                `bson:"factors_total" json:"factors_total"`
	DatabaseMatched  bool               `bson:"database_matched" json:"database_matched"`
	LedgerMatched    bool               `bson:"ledger_matched" json:"ledger_matched"`
	SignatureMatched bool               `bson:"signature_matched" json:"signature_matched"`
	Source           string             `bson:"source" json:"source"`
	RequestIP        string             `bson:"request_ip,omitempty" json:"-"`
	CheckedAt        time.Time          `bson:"checked_at" json:"checked_at"`
}

// Store persists and queries verification attempts.
type Store interface {
	Insert(ctx context.Context, attempt *Attempt) error
	Recent(ctx context.Context, limit int64) ([]Attempt, error)
}

// MongoStore is the MongoDB-backed Store.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewMongoStore connects to MongoDB and returns a store backed by the
// verification_attempts collection of the given database.
func NewMongoStore(ctx context.Context, uri, database string, logger *zap.Logger) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(attemptsCollection),
		logger:     logger,
	}, nil
}

func (s *MongoStore) Insert(ctx context.Context, attempt *Attempt) error {
	if attempt.CheckedAt.IsZero() {
		attempt.CheckedAt = time.Now().UTC()
	}
	res, err := s.collection.InsertOne(ctx, attempt)
	if err != nil {
		return fmt.Errorf("failed to insert verification attempt: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		attempt.ID = oid
	}
	return nil
}

// Recent returns the latest attempts, newest first.
func (s *MongoStore) Recent(ctx context.Context, limit int64) ([]Attempt, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "checked_at", Value: -1}}).
		SetLimit(limit)
	cursor, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query verification attempts: %w", err)
	}
	defer cursor.Close(ctx)

	var attempts []Attempt
	if err := cursor.All(ctx, &attempts); err != nil {
		return nil, fmt.Errorf("failed to decode verification attempts: %w", err)
	}
	return attempts, nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
