package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	UsersCollection       = "oauth_users"
	ClientsCollection     = "oauth_clients"
	CodesCollection       = "oauth_auth_codes"
	TokensCollection      = "oauth_tokens"
	ConsentsCollection    = "oauth_consents"
	SigningKeysCollection = "oauth_signing_keys"
)

// EnsureIndexes creates the index set every lookup path relies on. Creation
// is idempotent; call it at startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		UsersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		ClientsCollection: {
			{Keys: bson.D{{Key: "client_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		CodesCollection: {
			{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
		TokensCollection: {
			{Keys: bson.D{{Key: "value_hash", Value: 1}}, Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "token_kind", Value: "refresh"}})},
			{Keys: bson.D{{Key: "subject", Value: 1}, {Key: "expires_at", Value: 1}}},
			{Keys: bson.D{{Key: "family_id", Value: 1}}},
		},
		ConsentsCollection: {
			{Keys: bson.D{{Key: "subject", Value: 1}, {Key: "client_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		SigningKeysCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "kid", Value: 1}}},
			{Keys: bson.D{{Key: "kid", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for coll, models := range specs {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}
