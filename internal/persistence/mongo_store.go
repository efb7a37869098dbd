package persistence

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/genflow/pkg/api"
)

// MongoStore is a FlowStateStore backed by MongoDB.
type MongoStore struct {
	coll *mongo.Collection
}

var _ api.FlowStateStore = (*MongoStore)(nil)

// NewMongoStore creates a Mongo-backed store. dbName defaults to "genflow"
// if empty, collName defaults to "flow_states".
func NewMongoStore(client *mongo.Client, dbName, collName string) *MongoStore {
	if dbName == "" {
		dbName = "genflow"
	}
	if collName == "" {
		collName = "flow_states"
	}
	return &MongoStore{coll: client.Database(dbName).Collection(collName)}
}

type mongoStateDoc struct {
	ID       string `bson:"_id"`
	FlowName string `bson:"flow_name"`
	Status   string `bson:"status"`
	Done     bool   `bson:"done"`
	State    []byte `bson:"state"`
}

func newMongoStateDoc(fs *api.FlowState) (*mongoStateDoc, error) {
	data, err := EncodeState(fs)
	if err != nil {
		return nil, err
	}
	return &mongoStateDoc{
		ID:       fs.FlowID,
		FlowName: fs.Name,
		Status:   string(fs.Status),
		Done:     stateDone(fs),
		State:    data,
	}, nil
}

func (s *MongoStore) Create(ctx context.Context, fs *api.FlowState) error {
	doc, err := newMongoStateDoc(fs)
	if err != nil {
		return err
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return api.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *MongoStore) Load(ctx context.Context, flowID string) (*api.FlowState, error) {
	var doc mongoStateDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": flowID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, api.ErrNotFound
		}
		return nil, err
	}
	return DecodeState(doc.State)
}

func (s *MongoStore) Save(ctx context.Context, fs *api.FlowState) error {
	doc, err := newMongoStateDoc(fs)
	if err != nil {
		return err
	}

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": fs.FlowID}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return api.ErrNotFound
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, q api.StateQuery) ([]*api.FlowStateSummary, string, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	filter := bson.M{"_id": bson.M{"$gt": q.ContinuationToken}}
	if q.Name != "" {
		filter["flow_name"] = q.Name
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit + 1))

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, "", err
	}
	defer cur.Close(ctx)

	var page []*api.FlowStateSummary
	for cur.Next(ctx) {
		var doc mongoStateDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, "", err
		}
		fs, err := DecodeState(doc.State)
		if err != nil {
			return nil, "", err
		}
		page = append(page, fs.Summary())
	}
	if err := cur.Err(); err != nil {
		return nil, "", err
	}

	token := ""
	if len(page) > limit {
		page = page[:limit]
		token = page[len(page)-1].FlowID
	}
	return page, token, nil
}
