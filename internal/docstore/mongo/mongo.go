// Package mongo implements docstore.Store on top of MongoDB, the document
// backend named in spec §6 for the lifecycle audit trail and credential KV.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/gradrix/dendrite/internal/docstore"
)

type row struct {
	Namespace string `bson:"namespace"`
	Key       string `bson:"key"`
	Value     []byte `bson:"value"`
}

// Store implements docstore.Store on a single Mongo collection, namespace
// and key forming a compound unique index.
type Store struct {
	collection *mongo.Collection
}

var _ docstore.Store = (*Store)(nil)

// Options configures the Mongo connection.
type Options struct {
	URI        string
	Database   string
	Collection string
}

// Open connects to Mongo and ensures the compound index exists.
func Open(ctx context.Context, opts Options) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("docstore/mongo: connect: %w", err)
	}
	collection := client.Database(opts.Database).Collection(opts.Collection)
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "namespace", Value: 1}, {Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("docstore/mongo: create index: %w", err)
	}
	return &Store{collection: collection}, nil
}

func (s *Store) Put(ctx context.Context, doc docstore.Document) error {
	filter := bson.M{"namespace": doc.Namespace, "key": doc.Key}
	update := bson.M{"$set": row{Namespace: doc.Namespace, Key: doc.Key, Value: doc.Value}}
	_, err := s.collection.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (s *Store) Get(ctx context.Context, namespace, key string) (docstore.Document, error) {
	var r row
	err := s.collection.FindOne(ctx, bson.M{"namespace": namespace, "key": key}).Decode(&r)
	if err == mongo.ErrNoDocuments {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, err
	}
	return docstore.Document{Namespace: r.Namespace, Key: r.Key, Value: r.Value}, nil
}

func (s *Store) List(ctx context.Context, namespace string) ([]docstore.Document, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"namespace": namespace})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var out []docstore.Document
	for cursor.Next(ctx) {
		var r row
		if err := cursor.Decode(&r); err != nil {
			return nil, err
		}
		out = append(out, docstore.Document{Namespace: r.Namespace, Key: r.Key, Value: r.Value})
	}
	return out, cursor.Err()
}

func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"namespace": namespace, "key": key})
	return err
}
