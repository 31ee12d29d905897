package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fhirhub/smartauth/domain"
	"github.com/fhirhub/smartauth/errors"
)

// SigningKeyRepository is the MongoDB domain.SigningKeyRepository.
type SigningKeyRepository struct {
	keys *mongo.Collection
}

func NewSigningKeyRepository(db *mongo.Database) *SigningKeyRepository {
	return &SigningKeyRepository{keys: db.Collection(SigningKeysCollection)}
}

func (r *SigningKeyRepository) SaveKey(ctx context.Context, key *domain.SigningKey) error {
	if _, err := r.keys.InsertOne(ctx, key); err != nil {
		return fmt.Errorf("insert signing key: %w", mapErr(err))
	}
	return nil
}

func (r *SigningKeyRepository) GetKey(ctx context.Context, kid string) (*domain.SigningKey, error) {
	var key domain.SigningKey
	if err := r.keys.FindOne(ctx, bson.M{"kid": kid}).Decode(&key); err != nil {
		return nil, mapErr(err)
	}
	return &key, nil
}

func (r *SigningKeyRepository) UpdateKeyStatus(ctx context.Context, kid string, status domain.KeyStatus, notAfter time.Time) error {
	res, err := r.keys.UpdateOne(ctx,
		bson.M{"kid": kid},
		bson.M{"$set": bson.M{"status": status, "not_after": notAfter}},
	)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return errors.ErrNotFound
	}
	return nil
}

func (r *SigningKeyRepository) ListKeys(ctx context.Context, statuses ...domain.KeyStatus) ([]*domain.SigningKey, error) {
	filter := bson.M{}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	cursor, err := r.keys.Find(ctx, filter)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	var keys []*domain.SigningKey
	if err := cursor.All(ctx, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *SigningKeyRepository) DeleteKey(ctx context.Context, kid string) error {
	res, err := r.keys.DeleteOne(ctx, bson.M{"kid": kid})
	if err != nil {
		return mapErr(err)
	}
	if res.DeletedCount == 0 {
		return errors.ErrNotFound
	}
	return nil
}

var _ domain.SigningKeyRepository = (*SigningKeyRepository)(nil)
