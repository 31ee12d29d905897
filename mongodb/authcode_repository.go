package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fhirhub/smartauth/domain"
)

// AuthCodeRepository is the MongoDB domain.AuthCodeRepository.
type AuthCodeRepository struct {
	codes *mongo.Collection
}

func NewAuthCodeRepository(db *mongo.Database) *AuthCodeRepository {
	return &AuthCodeRepository{codes: db.Collection(CodesCollection)}
}

func (r *AuthCodeRepository) SaveAuthCode(ctx context.Context, code *domain.AuthorizationCode) error {
	if _, err := r.codes.InsertOne(ctx, code); err != nil {
		return fmt.Errorf("insert auth code: %w", mapErr(err))
	}
	return nil
}

// ConsumeAuthCode flips consumed on the matching unconsumed document and
// returns the pre-update state. The filter and update run as one document
// operation, so of two racing consumers exactly one matches; the loser sees
// no document.
func (r *AuthCodeRepository) ConsumeAuthCode(ctx context.Context, code string) (*domain.AuthorizationCode, error) {
	var rec domain.AuthorizationCode
	err := r.codes.FindOneAndUpdate(ctx,
		bson.M{"code": code, "consumed": false},
		bson.M{"$set": bson.M{"consumed": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&rec)
	if err != nil {
		return nil, mapErr(err)
	}
	return &rec, nil
}

func (r *AuthCodeRepository) DeleteExpiredAuthCodes(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.codes.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": olderThan}})
	if err != nil {
		return 0, mapErr(err)
	}
	return res.DeletedCount, nil
}

var _ domain.AuthCodeRepository = (*AuthCodeRepository)(nil)
