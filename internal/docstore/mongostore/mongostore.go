// Package mongostore adapts MongoDB collections to the document store contract.
// Live changes come from change streams; delete events carry the removed document
// only when the collection has changeStreamPreAndPostImages enabled.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/looplj/dochooks/internal/build"
	"github.com/looplj/dochooks/internal/docstore"
	"github.com/looplj/dochooks/internal/log"
)

type Config struct {
	URI      string `conf:"uri" yaml:"uri" json:"uri"`
	Database string `conf:"database" yaml:"database" json:"database"`
	// MaxPoolSize limits connections per server; 0 keeps the driver default.
	MaxPoolSize uint64 `conf:"max_pool_size" yaml:"max_pool_size" json:"max_pool_size"`
	// PreImages enables changeStreamPreAndPostImages on collections this store
	// opens, so delete events carry the removed document.
	PreImages bool `conf:"pre_images" yaml:"pre_images" json:"pre_images"`
}

type Database struct {
	client *mongo.Client
	db     *mongo.Database
	cfg    Config
}

func Open(ctx context.Context, cfg Config) (*Database, error) {
	opts := options.Client().ApplyURI(cfg.URI).SetAppName(build.UserAgent())
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	name := cfg.Database
	if name == "" {
		name = "dochooks"
	}

	return &Database{client: client, db: client.Database(name), cfg: cfg}, nil
}

func (d *Database) Collection(name string) (docstore.Store, error) {
	if d.cfg.PreImages {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := d.enablePreImages(ctx, name); err != nil {
			log.Warn(ctx, "failed to enable change stream pre-images", log.String("collection", name), log.Cause(err))
		}
	}

	return &Collection{coll: d.db.Collection(name)}, nil
}

func (d *Database) enablePreImages(ctx context.Context, name string) error {
	err := d.db.CreateCollection(ctx, name)

	var cmdErr mongo.CommandError
	if err != nil && !(errors.As(err, &cmdErr) && cmdErr.Name == "NamespaceExists") {
		return err
	}

	return d.db.RunCommand(ctx, bson.D{
		{Key: "collMod", Value: name},
		{Key: "changeStreamPreAndPostImages", Value: bson.D{{Key: "enabled", Value: true}}},
	}).Err()
}

func (d *Database) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return d.client.Disconnect(ctx)
}

type Collection struct {
	coll *mongo.Collection
}

var (
	_ docstore.Store      = (*Collection)(nil)
	_ docstore.Observable = (*Collection)(nil)
)

func (c *Collection) Name() string { return c.coll.Name() }

func (c *Collection) Insert(ctx context.Context, doc docstore.Document) (string, error) {
	stored := doc.Clone()
	if stored == nil {
		stored = docstore.Document{}
	}

	id := stored.ID()
	if id == "" {
		id = uuid.NewString()
		stored[docstore.IDField] = id
	}

	if _, err := c.coll.InsertOne(ctx, bson.M(stored)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("%w: %s", docstore.ErrDuplicateID, id)
		}

		return "", err
	}

	return id, nil
}

func (c *Collection) Update(ctx context.Context, sel docstore.Selector, mod docstore.Modifier, opts ...docstore.UpdateOption) (int, error) {
	if err := mod.Validate(); err != nil {
		return 0, err
	}

	o := docstore.ResolveUpdateOptions(opts...)

	if mod.IsReplacement() {
		if o.Multi {
			return 0, fmt.Errorf("%w: replacement cannot update multiple documents", docstore.ErrInvalidModifier)
		}

		res, err := c.coll.ReplaceOne(ctx, filter(sel), replacement(mod))
		if err != nil {
			return 0, err
		}

		return int(res.MatchedCount), nil
	}

	var (
		res *mongo.UpdateResult
		err error
	)

	if o.Multi {
		res, err = c.coll.UpdateMany(ctx, filter(sel), bson.M(mod))
	} else {
		res, err = c.coll.UpdateOne(ctx, filter(sel), bson.M(mod))
	}

	if err != nil {
		return 0, err
	}

	return int(res.MatchedCount), nil
}

func (c *Collection) Upsert(ctx context.Context, sel docstore.Selector, mod docstore.Modifier) (docstore.UpsertResult, error) {
	if err := mod.Validate(); err != nil {
		return docstore.UpsertResult{}, err
	}

	var (
		res *mongo.UpdateResult
		err error
	)

	if mod.IsReplacement() {
		res, err = c.coll.ReplaceOne(ctx, filter(sel), replacement(mod), options.Replace().SetUpsert(true))
	} else {
		res, err = c.coll.UpdateOne(ctx, filter(sel), bson.M(mod), options.UpdateOne().SetUpsert(true))
	}

	if err != nil {
		return docstore.UpsertResult{}, err
	}

	out := docstore.UpsertResult{
		Matched:  int(res.MatchedCount),
		Modified: int(res.ModifiedCount),
		Inserted: res.UpsertedCount > 0,
	}

	if out.Inserted {
		out.InsertedID = idString(res.UpsertedID)
	}

	return out, nil
}

func (c *Collection) Remove(ctx context.Context, sel docstore.Selector) (int, error) {
	res, err := c.coll.DeleteMany(ctx, filter(sel))
	if err != nil {
		return 0, err
	}

	return int(res.DeletedCount), nil
}

func (c *Collection) Find(ctx context.Context, sel docstore.Selector, opts ...docstore.FindOption) ([]docstore.Document, error) {
	o := docstore.ResolveFindOptions(opts...)

	findOpts := options.Find()
	if o.Sort != "" {
		findOpts.SetSort(sortSpec(o))
	}

	if o.Limit > 0 {
		findOpts.SetLimit(int64(o.Limit))
	}

	cursor, err := c.coll.Find(ctx, filter(sel), findOpts)
	if err != nil {
		return nil, err
	}

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, err
	}

	docs := make([]docstore.Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, Normalize(m))
	}

	return docs, nil
}

func (c *Collection) FindOne(ctx context.Context, sel docstore.Selector, opts ...docstore.FindOption) (docstore.Document, error) {
	o := docstore.ResolveFindOptions(opts...)

	findOpts := options.FindOne()
	if o.Sort != "" {
		findOpts.SetSort(sortSpec(o))
	}

	var m bson.M

	err := c.coll.FindOne(ctx, filter(sel), findOpts).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return Normalize(m), nil
}

func filter(sel docstore.Selector) bson.M {
	if sel == nil {
		return bson.M{}
	}

	return bson.M(sel)
}

func replacement(mod docstore.Modifier) bson.M {
	out := bson.M{}

	for k, v := range mod {
		if k != docstore.IDField {
			out[k] = v
		}
	}

	return out
}

func sortSpec(o docstore.FindOptions) bson.D {
	dir := 1
	if o.Descending {
		dir = -1
	}

	return bson.D{{Key: o.Sort, Value: dir}}
}

func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case bson.ObjectID:
		return id.Hex()
	default:
		return fmt.Sprint(id)
	}
}
