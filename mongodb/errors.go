package mongodb

import (
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fhirhub/smartauth/errors"
)

// mapErr folds driver-level misses and uniqueness violations into the
// storage error kinds the domain layer branches on.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return errors.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return errors.ErrDuplicate
	default:
		return err
	}
}
