package taskqueue

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoQueue is a Queue backed by a MongoDB collection. Claiming uses
// FindOneAndDelete, which is atomic per document, so a task goes to exactly
// one worker.
type MongoQueue struct {
	coll         *mongo.Collection
	pollInterval time.Duration
}

// NewMongoQueue creates a Mongo-backed queue. dbName defaults to "genflow",
// collName to "queue_tasks".
func NewMongoQueue(client *mongo.Client, dbName, collName string) *MongoQueue {
	if dbName == "" {
		dbName = "genflow"
	}
	if collName == "" {
		collName = "queue_tasks"
	}
	return &MongoQueue{
		coll:         client.Database(dbName).Collection(collName),
		pollInterval: 100 * time.Millisecond,
	}
}

var _ Queue = (*MongoQueue)(nil)

type mongoQueueDoc struct {
	ID        interface{} `bson:"_id,omitempty"`
	TaskID    string      `bson:"task_id"`
	Body      []byte      `bson:"body"`
	Enqueued  int64       `bson:"enqueued_at"`
	NotBefore int64       `bson:"not_before"`
}

func (q *MongoQueue) Enqueue(ctx context.Context, t Task) error {
	now := time.Now()
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = now
	}
	notBefore := t.NotBefore
	if notBefore.IsZero() {
		notBefore = t.EnqueuedAt
	}

	body, err := EncodeTask(t)
	if err != nil {
		return err
	}

	_, err = q.coll.InsertOne(ctx, mongoQueueDoc{
		TaskID:    t.ID,
		Body:      body,
		Enqueued:  t.EnqueuedAt.UnixNano(),
		NotBefore: notBefore.UnixNano(),
	})
	return err
}

func (q *MongoQueue) Dequeue(ctx context.Context) (*Task, error) {
	opts := options.FindOneAndDelete().
		SetSort(bson.D{{Key: "not_before", Value: 1}, {Key: "enqueued_at", Value: 1}})

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		filter := bson.M{"not_before": bson.M{"$lte": time.Now().UnixNano()}}

		var doc mongoQueueDoc
		err := q.coll.FindOneAndDelete(ctx, filter, opts).Decode(&doc)
		if err == nil {
			return DecodeTask(doc.Body)
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *MongoQueue) Len() int {
	n, err := q.coll.CountDocuments(context.Background(), bson.M{})
	if err != nil {
		return 0
	}
	return int(n)
}
