package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IgorGrieder/short-url/internal/infrastructure/db"
	"github.com/IgorGrieder/short-url/internal/processing/links"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const linksCollection = "links"

type LinksRepository struct {
	coll *mongo.Collection
}

type linkDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	ShortCode    string             `bson:"shortCode"`
	OriginalURL  string             `bson:"originalUrl"`
	CreatedBy    int64              `bson:"createdBy"`
	CreatedAt    time.Time          `bson:"createdAt"`
	ClickCount   int64              `bson:"clickCount"`
	LastAccessed *time.Time         `bson:"lastAccessed,omitempty"`
}

func NewLinksRepository(ctx context.Context, m *db.Mongo) (*LinksRepository, error) {
	repo := &LinksRepository{coll: m.Collection(linksCollection)}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := repo.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "shortCode", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_short_code"),
		},
		{
			Keys:    bson.D{{Key: "createdBy", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("createdBy_createdAt"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create link indexes: %w", err)
	}

	return repo, nil
}

func (r *LinksRepository) Insert(ctx context.Context, link *links.Link) error {
	doc := linkDoc{
		ShortCode:   link.ShortCode,
		OriginalURL: link.OriginalURL,
		CreatedBy:   ownerKey(link.CreatedBy),
		CreatedAt:   link.CreatedAt.UTC(),
		ClickCount:  link.ClickCount,
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return links.ErrCodeTaken
		}
		return err
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		link.ID = oid.Hex()
	}
	return nil
}

func (r *LinksRepository) FindByCode(ctx context.Context, code string) (*links.Link, error) {
	return r.findOne(ctx, bson.M{"shortCode": code})
}

func (r *LinksRepository) FindByOwnerAndURL(ctx context.Context, owner uint64, originalURL string) (*links.Link, error) {
	return r.findOne(ctx, bson.M{"createdBy": ownerKey(owner), "originalUrl": originalURL})
}

func (r *LinksRepository) findOne(ctx context.Context, filter bson.M) (*links.Link, error) {
	var doc linkDoc
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if err == nil {
		return mapLinkDoc(doc), nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, links.ErrNotFound
	}

	return nil, err
}

func (r *LinksRepository) ListByOwner(ctx context.Context, owner uint64) ([]links.Link, error) {
	cur, err := r.coll.Find(ctx,
		bson.M{"createdBy": ownerKey(owner)},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []linkDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]links.Link, 0, len(docs))
	for _, d := range docs {
		out = append(out, *mapLinkDoc(d))
	}
	return out, nil
}

func (r *LinksRepository) DeleteByCodeAndOwner(ctx context.Context, code string, owner uint64) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"shortCode": code, "createdBy": ownerKey(owner)})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// IncrementClick is a single server-side update, so concurrent redirects
// never lose a count.
func (r *LinksRepository) IncrementClick(ctx context.Context, code string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"shortCode": code},
		bson.M{
			"$inc": bson.M{"clickCount": 1},
			"$set": bson.M{"lastAccessed": at.UTC()},
		},
	)
	return err
}

func mapLinkDoc(doc linkDoc) *links.Link {
	return &links.Link{
		ID:           doc.ID.Hex(),
		ShortCode:    doc.ShortCode,
		OriginalURL:  doc.OriginalURL,
		CreatedBy:    uint64(doc.CreatedBy),
		CreatedAt:    doc.CreatedAt,
		ClickCount:   doc.ClickCount,
		LastAccessed: doc.LastAccessed,
	}
}

// ownerKey stores provider ids as their int64 bit pattern; BSON has no
// unsigned 64-bit type.
func ownerKey(id uint64) int64 {
	return int64(id)
}

var _ links.LinkRepository = (*LinksRepository)(nil)
