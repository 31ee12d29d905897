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

// ClientRepository is the MongoDB domain.ClientRepository.
type ClientRepository struct {
	clients *mongo.Collection
}

func NewClientRepository(db *mongo.Database) *ClientRepository {
	return &ClientRepository{clients: db.Collection(ClientsCollection)}
}

func (r *ClientRepository) CreateClient(ctx context.Context, client *domain.Client) error {
	if _, err := r.clients.InsertOne(ctx, client); err != nil {
		return fmt.Errorf("insert client: %w", mapErr(err))
	}
	return nil
}

func (r *ClientRepository) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	var client domain.Client
	err := r.clients.FindOne(ctx, bson.M{"client_id": clientID}).Decode(&client)
	if err != nil {
		return nil, mapErr(err)
	}
	return &client, nil
}

func (r *ClientRepository) UpdateClient(ctx context.Context, client *domain.Client) error {
	res, err := r.clients.ReplaceOne(ctx, bson.M{"client_id": client.ID}, client)
	if err != nil {
		return fmt.Errorf("replace client: %w", mapErr(err))
	}
	if res.MatchedCount == 0 {
		return errors.ErrNotFound
	}
	return nil
}

func (r *ClientRepository) TouchClientLastUsed(ctx context.Context, clientID string, when time.Time) error {
	res, err := r.clients.UpdateOne(ctx,
		bson.M{"client_id": clientID},
		bson.M{"$set": bson.M{"last_used": when}},
	)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return errors.ErrNotFound
	}
	return nil
}

func (r *ClientRepository) ListClients(ctx context.Context) ([]*domain.Client, error) {
	cursor, err := r.clients.Find(ctx, bson.M{})
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	var clients []*domain.Client
	if err := cursor.All(ctx, &clients); err != nil {
		return nil, err
	}
	return clients, nil
}

var _ domain.ClientRepository = (*ClientRepository)(nil)
