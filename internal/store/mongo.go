package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDirectory reads Expo push tokens from the platform's users collection.
// The collection is owned by the main app; this side only reads it.
type MongoDirectory struct {
	client *mongo.Client
	users  *mongo.Collection
}

func NewMongoDirectory(ctx context.Context, uri, database string) (*MongoDirectory, error) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoDirectory{
		client: client,
		users:  client.Database(database).Collection("users"),
	}, nil
}

// PushTokens batch-fetches the push tokens of the given users. Users without a
// token are skipped. Ids may be ObjectID hex strings or plain string ids.
func (d *MongoDirectory) PushTokens(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	ids := make([]any, 0, len(userIDs))
	for _, id := range userIDs {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			ids = append(ids, oid)
			continue
		}
		ids = append(ids, id)
	}

	cur, err := d.users.Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "pushToken": bson.M{"$exists": true, "$ne": ""}},
		options.Find().SetProjection(bson.M{"pushToken": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cur.Close(ctx)

	var tokens []string
	for cur.Next(ctx) {
		var doc struct {
			PushToken string `bson:"pushToken"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		tokens = append(tokens, doc.PushToken)
	}
	return tokens, cur.Err()
}

func (d *MongoDirectory) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}
