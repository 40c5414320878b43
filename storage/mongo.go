// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"

	"github.com/gorse-io/itemcf/dataset"
	"github.com/juju/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

// MongoRating is a document of the rating collection.
type MongoRating struct {
	UserId int     `bson:"userId"`
	ItemId int     `bson:"itemId"`
	Rating float64 `bson:"rating"`
}

// MongoDB is a rating source backed by a MongoDB collection.
type MongoDB struct {
	client     *mongo.Client
	dbName     string
	collection string
	opts       dataset.CSVOptions
}

func openMongo(path, collection string, opts dataset.CSVOptions) (*MongoDB, error) {
	database := &MongoDB{collection: collection, opts: opts}
	clientOpts := options.Client()
	clientOpts.Monitor = otelmongo.NewMonitor()
	clientOpts.ApplyURI(path)
	var err error
	if database.client, err = mongo.Connect(context.Background(), clientOpts); err != nil {
		return nil, errors.Trace(err)
	}
	// parse DSN and extract database name
	cs, err := connstring.ParseAndValidate(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if cs.Database == "" {
		return nil, errors.NotValidf("database name in %s", path)
	}
	database.dbName = cs.Database
	return database, nil
}

func (m *MongoDB) Init(ctx context.Context) error {
	d := m.client.Database(m.dbName)
	// list collections
	collections, err := d.ListCollectionNames(ctx, bson.M{"name": m.collection})
	if err != nil {
		return errors.Trace(err)
	}
	if len(collections) == 0 {
		if err = d.CreateCollection(ctx, m.collection); err != nil {
			return errors.Trace(err)
		}
	}
	// create index
	_, err = d.Collection(m.collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "itemId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return errors.Trace(err)
}

func (m *MongoDB) Load(ctx context.Context) ([]dataset.Rating, error) {
	c := m.client.Database(m.dbName).Collection(m.collection)
	opt := options.Find()
	opt.SetSort(bson.D{{Key: "userId", Value: 1}, {Key: "itemId", Value: 1}})
	r, err := c.Find(ctx, bson.M{}, opt)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer r.Close(ctx)
	var ratings []dataset.Rating
	for r.Next(ctx) {
		var doc MongoRating
		if err = r.Decode(&doc); err != nil {
			return nil, errors.Trace(err)
		}
		rating := dataset.Rating{UserId: doc.UserId, ItemId: doc.ItemId, Value: doc.Rating}
		if err = dataset.ValidateRating(rating, m.opts.MinRating, m.opts.MaxRating); err != nil {
			return nil, errors.Trace(err)
		}
		ratings = append(ratings, rating)
	}
	return ratings, errors.Trace(r.Err())
}

func (m *MongoDB) Insert(ctx context.Context, ratings []dataset.Rating) error {
	if len(ratings) == 0 {
		return nil
	}
	if err := validate(ratings, m.opts); err != nil {
		return errors.Trace(err)
	}
	c := m.client.Database(m.dbName).Collection(m.collection)
	var models []mongo.WriteModel
	for _, r := range ratings {
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"userId": r.UserId, "itemId": r.ItemId}).
			SetUpdate(bson.M{"$set": MongoRating{UserId: r.UserId, ItemId: r.ItemId, Rating: r.Value}}))
	}
	_, err := c.BulkWrite(ctx, models)
	return errors.Trace(err)
}

func (m *MongoDB) Close() error {
	return m.client.Disconnect(context.Background())
}
