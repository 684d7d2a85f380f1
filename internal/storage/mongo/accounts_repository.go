package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/IgorGrieder/short-url/internal/infrastructure/db"
	"github.com/IgorGrieder/short-url/internal/processing/accounts"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const accountsCollection = "accounts"

type AccountsRepository struct {
	coll *mongo.Collection
}

type accountDoc struct {
	ID        int64     `bson:"_id"`
	Email     string    `bson:"email"`
	CreatedAt time.Time `bson:"createdAt"`
}

// NewAccountsRepository needs no extra indexes: the provider id is the _id.
func NewAccountsRepository(m *db.Mongo) *AccountsRepository {
	return &AccountsRepository{coll: m.Collection(accountsCollection)}
}

func (r *AccountsRepository) FindByID(ctx context.Context, id uint64) (*accounts.Account, error) {
	var doc accountDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": ownerKey(id)}).Decode(&doc)
	if err == nil {
		return &accounts.Account{
			ID:        uint64(doc.ID),
			Email:     doc.Email,
			CreatedAt: doc.CreatedAt,
		}, nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, accounts.ErrAccountNotFound
	}

	return nil, err
}

func (r *AccountsRepository) Insert(ctx context.Context, account *accounts.Account) error {
	_, err := r.coll.InsertOne(ctx, accountDoc{
		ID:        ownerKey(account.ID),
		Email:     account.Email,
		CreatedAt: account.CreatedAt.UTC(),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return accounts.ErrAccountExists
		}
		return err
	}
	return nil
}

var _ accounts.AccountRepository = (*AccountsRepository)(nil)
