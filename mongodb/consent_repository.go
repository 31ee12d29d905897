package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fhirhub/smartauth/domain"
	"github.com/fhirhub/smartauth/errors"
)

// ConsentRepository is the MongoDB domain.ConsentRepository.
type ConsentRepository struct {
	consents *mongo.Collection
}

func NewConsentRepository(db *mongo.Database) *ConsentRepository {
	return &ConsentRepository{consents: db.Collection(ConsentsCollection)}
}

// UpsertConsent merges scopes into the pair's active grant in one document
// operation. A revoked grant is overwritten wholesale: scopes reset to the
// new set and the revocation marker clears.
func (r *ConsentRepository) UpsertConsent(ctx context.Context, record *domain.ConsentRecord) error {
	filter := bson.M{"subject": record.Subject, "client_id": record.ClientID}

	var existing domain.ConsentRecord
	err := r.consents.FindOne(ctx, filter).Decode(&existing)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments) || (err == nil && existing.RevokedAt != nil):
		_, err = r.consents.ReplaceOne(ctx, filter, record, options.Replace().SetUpsert(true))
		return mapErr(err)
	case err != nil:
		return mapErr(err)
	}

	_, err = r.consents.UpdateOne(ctx, filter, bson.M{
		"$addToSet": bson.M{"granted_scopes": bson.M{"$each": record.GrantedScopes}},
		"$set":      bson.M{"granted_at": record.GrantedAt},
	})
	return mapErr(err)
}

func (r *ConsentRepository) GetConsent(ctx context.Context, subject, clientID string) (*domain.ConsentRecord, error) {
	var rec domain.ConsentRecord
	err := r.consents.FindOne(ctx, bson.M{"subject": subject, "client_id": clientID}).Decode(&rec)
	if err != nil {
		return nil, mapErr(err)
	}
	return &rec, nil
}

func (r *ConsentRepository) RevokeConsent(ctx context.Context, subject, clientID string, when time.Time) error {
	res, err := r.consents.UpdateOne(ctx,
		bson.M{"subject": subject, "client_id": clientID, "revoked_at": nil},
		bson.M{"$set": bson.M{"revoked_at": when}},
	)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return errors.ErrNotFound
	}
	return nil
}

var _ domain.ConsentRepository = (*ConsentRepository)(nil)
