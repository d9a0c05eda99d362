package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/estatio/docrender/internal/document"
)

// maxRevisionRetries bounds the optimistic retry loop in UpdateContent.
const maxRevisionRetries = 3

// MongoTemplateRepo implements TemplateRepository on a MongoDB collection.
// The selection key is enforced by a unique compound index; a missing
// effectiveDate indexes as null so two undated templates at one path collide.
type MongoTemplateRepo struct {
	col *mongo.Collection
}

// NewMongoTemplateRepo ensures the indexes exist and returns the repository.
func NewMongoTemplateRepo(ctx context.Context, col *mongo.Collection) (*MongoTemplateRepo, error) {
	idx := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "type", Value: 1}, {Key: "scopePath", Value: 1}, {Key: "effectiveDate", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("type_scopePath_effectiveDate"),
		},
		{
			Keys: bson.D{{Key: "scopePath", Value: 1}, {Key: "effectiveDate", Value: 1}},
		},
	}
	if _, err := col.Indexes().CreateMany(ctx, idx); err != nil {
		return nil, fmt.Errorf("create template indexes: %w", err)
	}
	return &MongoTemplateRepo{col: col}, nil
}

func (m *MongoTemplateRepo) Create(ctx context.Context, t *document.Template) (string, error) {
	if err := prepareTemplate(t, time.Now().UTC()); err != nil {
		return "", err
	}
	if _, err := m.col.InsertOne(ctx, t); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrAlreadyExists
		}
		return "", err
	}
	return t.ID, nil
}

func (m *MongoTemplateRepo) Get(ctx context.Context, id string) (*document.Template, error) {
	var t document.Template
	if err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (m *MongoTemplateRepo) List(ctx context.Context, typeRef string) ([]document.Template, error) {
	filter := bson.M{}
	if typeRef != "" {
		filter["type"] = typeRef
	}
	return m.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (m *MongoTemplateRepo) FindByTypeAndAtPath(ctx context.Context, typeRef, path string) ([]document.Template, error) {
	filter := bson.M{"type": typeRef, "scopePath": document.NormalizePath(path)}
	out, err := m.find(ctx, filter, nil)
	if err != nil {
		return nil, err
	}
	sortByDateDesc(out)
	return out, nil
}

// FindTemplatesByTypeAndPathPrefixAndCurrent turns the prefix predicate into
// an $in over every prefix of path, which the compound index can serve.
func (m *MongoTemplateRepo) FindTemplatesByTypeAndPathPrefixAndCurrent(ctx context.Context, typeRef, path string, asOf time.Time) ([]document.Template, error) {
	return m.find(ctx, currentFilter(typeRef, path, asOf), nil)
}

func currentFilter(typeRef, path string, asOf time.Time) bson.M {
	return bson.M{
		"type":      typeRef,
		"retired":   bson.M{"$ne": true},
		"scopePath": bson.M{"$in": document.Prefixes(path)},
		"$or": bson.A{
			bson.M{"effectiveDate": nil},
			bson.M{"effectiveDate": bson.M{"$lte": asOf.UTC()}},
		},
	}
}

// contentUpdate matches only the revision that was read and bumps it with
// the new content.
func contentUpdate(id string, revision int64, content document.Content, now time.Time) (filter, update bson.M) {
	filter = bson.M{"_id": id, "revision": revision}
	update = bson.M{
		"$set": bson.M{"content": content, "updatedAt": now},
		"$inc": bson.M{"revision": 1},
	}
	return filter, update
}

// UpdateContent replaces the content and bumps the revision in one update,
// guarded by the revision that was read so a concurrent writer cannot be
// overwritten with a stale revision.
func (m *MongoTemplateRepo) UpdateContent(ctx context.Context, id string, content document.Content) (int64, error) {
	for attempt := 0; attempt < maxRevisionRetries; attempt++ {
		current, err := m.Get(ctx, id)
		if err != nil {
			return 0, err
		}
		changed, err := checkContentUpdate(current.Content, content)
		if err != nil {
			return 0, err
		}
		if !changed {
			return current.Revision, nil
		}
		filter, update := contentUpdate(id, current.Revision, content, time.Now().UTC())
		res, err := m.col.UpdateOne(ctx, filter, update)
		if err != nil {
			return 0, err
		}
		if res.MatchedCount == 1 {
			return current.Revision + 1, nil
		}
	}
	return 0, fmt.Errorf("update template %s: revision changed concurrently", id)
}

func (m *MongoTemplateRepo) GetRevision(ctx context.Context, id string) (int64, error) {
	var out struct {
		Revision int64 `bson:"revision"`
	}
	opts := options.FindOne().SetProjection(bson.M{"revision": 1})
	if err := m.col.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return out.Revision, nil
}

func (m *MongoTemplateRepo) Retire(ctx context.Context, id string) error {
	res, err := m.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"retired": true, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoTemplateRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]document.Template, error) {
	var findOpts []*options.FindOptions
	if opts != nil {
		findOpts = append(findOpts, opts)
	}
	cur, err := m.col.Find(ctx, filter, findOpts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []document.Template{}
	for cur.Next(ctx) {
		var t document.Template
		if err := cur.Decode(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, cur.Err()
}

// MongoDocumentRepo implements DocumentRepository on a MongoDB collection.
type MongoDocumentRepo struct {
	col *mongo.Collection
}

func NewMongoDocumentRepo(col *mongo.Collection) *MongoDocumentRepo {
	return &MongoDocumentRepo{col: col}
}

func (m *MongoDocumentRepo) CreateDocument(ctx context.Context, typeRef, path string, artifact document.RenderedDocument) (document.Document, error) {
	d := document.Document{
		ID:               uuid.NewString(),
		Type:             typeRef,
		Path:             document.NormalizePath(path),
		RenderedDocument: artifact,
	}
	if _, err := m.col.InsertOne(ctx, d); err != nil {
		return document.Document{}, fmt.Errorf("insert document: %w", err)
	}
	return d, nil
}

func (m *MongoDocumentRepo) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	var d document.Document
	if err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}
