package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fhirhub/smartauth/domain"
)

// UserRepository is the MongoDB domain.UserRepository.
type UserRepository struct {
	users *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{users: db.Collection(UsersCollection)}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	if _, err := r.users.InsertOne(ctx, user); err != nil {
		return fmt.Errorf("insert user: %w", mapErr(err))
	}
	return nil
}

func (r *UserRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := r.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, mapErr(err)
	}
	return &user, nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := r.users.FindOne(ctx, bson.M{"email": email}).Decode(&user); err != nil {
		return nil, mapErr(err)
	}
	return &user, nil
}

var _ domain.UserRepository = (*UserRepository)(nil)
