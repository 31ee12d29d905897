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

// TokenRepository is the MongoDB domain.TokenRepository.
type TokenRepository struct {
	tokens *mongo.Collection
}

func NewTokenRepository(db *mongo.Database) *TokenRepository {
	return &TokenRepository{tokens: db.Collection(TokensCollection)}
}

func (r *TokenRepository) StoreToken(ctx context.Context, token *domain.Token) error {
	if _, err := r.tokens.InsertOne(ctx, token); err != nil {
		return fmt.Errorf("insert token: %w", mapErr(err))
	}
	return nil
}

func (r *TokenRepository) GetToken(ctx context.Context, id string) (*domain.Token, error) {
	var token domain.Token
	if err := r.tokens.FindOne(ctx, bson.M{"_id": id}).Decode(&token); err != nil {
		return nil, mapErr(err)
	}
	return &token, nil
}

func (r *TokenRepository) GetRefreshTokenByHash(ctx context.Context, valueHash string) (*domain.Token, error) {
	var token domain.Token
	err := r.tokens.FindOne(ctx, bson.M{
		"token_kind": domain.TokenKindRefresh,
		"value_hash": valueHash,
	}).Decode(&token)
	if err != nil {
		return nil, mapErr(err)
	}
	return &token, nil
}

func (r *TokenRepository) RevokeToken(ctx context.Context, id string) error {
	res, err := r.tokens.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"revoked": true}},
	)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return errors.ErrNotFound
	}
	return nil
}

func (r *TokenRepository) RevokeTokenFamily(ctx context.Context, familyID string) error {
	_, err := r.tokens.UpdateMany(ctx,
		bson.M{"family_id": familyID},
		bson.M{"$set": bson.M{"revoked": true}},
	)
	return mapErr(err)
}

func (r *TokenRepository) RevokeSubjectClientTokens(ctx context.Context, subject, clientID string) error {
	_, err := r.tokens.UpdateMany(ctx,
		bson.M{"subject": subject, "client_id": clientID},
		bson.M{"$set": bson.M{"revoked": true}},
	)
	return mapErr(err)
}

func (r *TokenRepository) DeleteExpiredTokens(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.tokens.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": olderThan}})
	if err != nil {
		return 0, mapErr(err)
	}
	return res.DeletedCount, nil
}

var _ domain.TokenRepository = (*TokenRepository)(nil)
