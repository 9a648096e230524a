package documents

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/flowbot/media-migrator/internal/config"
	"github.com/pkg/errors"
	"github.com/thoas/go-funk"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

const (
	mediaURLField     = "flow.data.url"
	rewriteIdentifier = "n"
)

// Store reads and rewrites flow documents in MongoDB.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func Connect(ctx context.Context, cfg *config.Config) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.Mongo.URL))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to MongoDB")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "failed to ping MongoDB")
	}

	zap.S().Named("documents").Infow("connected to document store", "database", cfg.Mongo.Database, "collection", cfg.Mongo.Collection)

	return &Store{
		client:     client,
		collection: client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection),
	}, nil
}

// ActiveMediaURLs returns the distinct non-empty media urls embedded in active documents.
func (s *Store) ActiveMediaURLs(ctx context.Context) ([]string, error) {
	cursor, err := s.collection.Aggregate(ctx, DiscoveryPipeline())
	if err != nil {
		return nil, errors.Wrap(err, "failed to aggregate media urls")
	}
	defer cursor.Close(ctx)

	var result struct {
		URLs []string `bson:"urls"`
	}
	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return nil, errors.Wrap(err, "failed to read media urls")
		}
		return []string{}, nil
	}
	if err := cursor.Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to decode media urls")
	}

	return UniqueURLs(result.URLs), nil
}

// RewriteReferences points every image or video reference whose url ends with
// filename at destURL and drops its stale attachment ids. Each document is
// changed by a single server-side update touching only the matching nodes, so
// concurrent rewrites of different files in one document do not overwrite each
// other. It returns the number of documents modified.
func (s *Store) RewriteReferences(ctx context.Context, filename string, destURL string) (int64, error) {
	if !ValidFilename(filename) {
		return 0, errors.Errorf("refusing to rewrite references to filename %q", filename)
	}

	opts := options.UpdateMany().SetArrayFilters([]any{RewriteArrayFilter(filename)})
	result, err := s.collection.UpdateMany(ctx, RewriteFilter(filename), RewriteUpdate(destURL), opts)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to rewrite references to %q", filename)
	}
	return result.ModifiedCount, nil
}

// CountReferencing counts documents with an image or video reference exactly
// equal to url.
func (s *Store) CountReferencing(ctx context.Context, rawURL string) (int64, error) {
	n, err := s.collection.CountDocuments(ctx, ReferenceFilter(rawURL))
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count documents referencing %q", rawURL)
	}
	return n, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// DiscoveryPipeline collects the set of media urls of active documents.
func DiscoveryPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "is_active", Value: true},
			{Key: mediaURLField, Value: bson.D{{Key: "$exists", Value: true}}},
		}}},
		{{Key: "$unwind", Value: bson.D{{Key: "path", Value: "$flow"}}}},
		{{Key: "$match", Value: bson.D{
			{Key: mediaURLField, Value: bson.D{{Key: "$exists", Value: true}, {Key: "$ne", Value: ""}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "urls", Value: bson.D{{Key: "$addToSet", Value: "$" + mediaURLField}}},
		}}},
	}
}

// ReferenceFilter matches documents holding an image or video node whose url is rawURL.
func ReferenceFilter(rawURL string) bson.M {
	return bson.M{
		"flow": bson.M{"$elemMatch": bson.M{
			"data.url":  rawURL,
			"data.type": rewritableTypes(),
		}},
	}
}

// RewriteFilter matches documents holding an image or video node whose url
// ends with filename.
func RewriteFilter(filename string) bson.M {
	return bson.M{
		"flow": bson.M{"$elemMatch": bson.M{
			"data.url":  FilenamePattern(filename),
			"data.type": rewritableTypes(),
		}},
	}
}

// RewriteArrayFilter selects the nodes updated by RewriteUpdate.
func RewriteArrayFilter(filename string) bson.M {
	return bson.M{
		rewriteIdentifier + ".data.url":  FilenamePattern(filename),
		rewriteIdentifier + ".data.type": rewritableTypes(),
	}
}

// RewriteUpdate sets the url of the selected nodes and unsets their stale ids.
// Nothing outside those nodes is written.
func RewriteUpdate(destURL string) bson.M {
	node := "flow.$[" + rewriteIdentifier + "].data."
	return bson.M{
		"$set": bson.M{node + "url": destURL},
		"$unset": bson.M{
			node + "attachment_id": "",
			node + "external_id":   "",
		},
	}
}

// FilenamePattern matches urls ending with filename, ignoring case, whether the
// stored url keeps the name raw ("my cat.jpg") or escaped ("my%20cat.jpg").
func FilenamePattern(filename string) bson.Regex {
	alternatives := funk.UniqString([]string{
		regexp.QuoteMeta(filename),
		regexp.QuoteMeta(url.PathEscape(filename)),
	})
	return bson.Regex{Pattern: "(?:" + strings.Join(alternatives, "|") + ")$", Options: "i"}
}

func rewritableTypes() bson.M {
	return bson.M{"$in": bson.A{string(MediaImage), string(MediaVideo)}}
}

// UniqueURLs trims urls and drops empty values and duplicates.
func UniqueURLs(urls []string) []string {
	trimmed := funk.Map(urls, strings.TrimSpace).([]string)
	nonEmpty := funk.FilterString(trimmed, func(u string) bool { return u != "" })
	return funk.UniqString(nonEmpty)
}
