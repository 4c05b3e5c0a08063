package replica

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSink writes mirrored changes to one MongoDB database.
type MongoSink struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ Sink = (*MongoSink)(nil)

// NewMongoSink connects to uri and writes into database.
func NewMongoSink(ctx context.Context, uri, database string) (*MongoSink, error) {
	if uri == "" {
		return nil, ErrNoURI
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect replica: %w", err)
	}
	return &MongoSink{client: client, db: client.Database(database)}, nil
}

// Write applies ops in order as one bulk write.
func (s *MongoSink) Write(ctx context.Context, coll string, ops []Op) error {
	models := make([]mongo.WriteModel, 0, len(ops))
	for _, op := range ops {
		models = append(models, writeModel(op))
	}
	_, err := s.db.Collection(coll).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	return err
}

func writeModel(op Op) mongo.WriteModel {
	switch op.Kind {
	case OpInsert:
		return mongo.NewInsertOneModel().SetDocument(bson.M(op.Doc))
	case OpDelete:
		return mongo.NewDeleteManyModel().SetFilter(bson.M(op.Filter))
	default:
		return mongo.NewReplaceOneModel().
			SetFilter(bson.M(op.Filter)).
			SetReplacement(bson.M(op.Doc)).
			SetUpsert(true)
	}
}

// Close disconnects the client.
func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
