package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/looplj/dochooks/internal/docstore"
	"github.com/looplj/dochooks/internal/log"
)

type changeEvent struct {
	OperationType            string `bson:"operationType"`
	FullDocument             bson.M `bson:"fullDocument"`
	FullDocumentBeforeChange bson.M `bson:"fullDocumentBeforeChange"`
	DocumentKey              bson.M `bson:"documentKey"`
}

// Watch opens a change stream. filter is applied to the normalized document of
// each event, so dotted provenance paths work the same as on the other stores.
func (c *Collection) Watch(ctx context.Context, filter docstore.Selector) (<-chan docstore.ChangeEvent, func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"operationType": bson.M{"$in": bson.A{"insert", "update", "replace", "delete"}}}}},
	}

	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)

	cs, err := c.coll.Watch(ctx, pipeline, opts)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	out := make(chan docstore.ChangeEvent, 256)

	go func() {
		defer close(out)
		defer cs.Close(context.WithoutCancel(ctx))

		for cs.Next(ctx) {
			var raw changeEvent
			if err := cs.Decode(&raw); err != nil {
				log.Warn(ctx, "failed to decode change event", log.String("collection", c.Name()), log.Cause(err))
				continue
			}

			ev, ok := toChangeEventFor(c.Name(), raw)
			if !ok || !docstore.EventMatches(ev, c.Name(), filter) {
				continue
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}

		if err := cs.Err(); err != nil && ctx.Err() == nil {
			log.Error(ctx, "change stream ended", log.String("collection", c.Name()), log.Cause(err))
		}
	}()

	return out, cancel, nil
}

func toChangeEventFor(collection string, raw changeEvent) (docstore.ChangeEvent, bool) {
	ev := docstore.ChangeEvent{Collection: collection}

	switch raw.OperationType {
	case "insert":
		ev.Kind = docstore.ChangeAdded
		ev.Document = Normalize(raw.FullDocument)
	case "update", "replace":
		if raw.FullDocument == nil {
			// The document was deleted before the lookup ran.
			return ev, false
		}

		ev.Kind = docstore.ChangeChanged
		ev.Document = Normalize(raw.FullDocument)

		if raw.FullDocumentBeforeChange != nil {
			ev.Previous = Normalize(raw.FullDocumentBeforeChange)
		}
	case "delete":
		ev.Kind = docstore.ChangeRemoved

		if raw.FullDocumentBeforeChange != nil {
			ev.Document = Normalize(raw.FullDocumentBeforeChange)
		} else {
			ev.Document = Normalize(raw.DocumentKey)
		}
	default:
		return ev, false
	}

	return ev, true
}
