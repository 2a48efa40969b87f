package docstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mirkwood-lang/mirkwood/internal/storage"
)

// MongoBackend executes compiled query documents with the MongoDB driver
type MongoBackend struct {
	client   *mongo.Client
	db       *mongo.Database
	compiler *Compiler
}

// NewMongoBackend creates a backend over a connected client
func NewMongoBackend(client *mongo.Client, database string) *MongoBackend {
	return &MongoBackend{
		client:   client,
		db:       client.Database(database),
		compiler: NewCompiler(CoerceObjectID),
	}
}

// OpenMongo is the storage.Factory for the mongodb adapter
func OpenMongo(ctx context.Context, cfg storage.ConnectionConfig) (storage.Adapter, error) {
	uri := cfg.URL
	if uri == "" {
		port := cfg.Port
		if port == 0 {
			port = 27017
		}
		u := url.URL{Scheme: "mongodb", Host: net.JoinHostPort(cfg.Host, strconv.Itoa(port))}
		if cfg.User != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		}
		uri = u.String()
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect error: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping error: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "mirkwood"
	}
	return NewMongoBackend(client, database), nil
}

// CoerceObjectID turns 24 digit hex strings into ObjectIDs
func CoerceObjectID(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	oid, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return v
	}
	return oid
}

func (b *MongoBackend) collection(c storage.Collection) *mongo.Collection {
	return b.db.Collection(c.Name)
}

// All returns the matching documents
func (b *MongoBackend) All(ctx context.Context, c storage.Collection, q storage.Query) ([]map[string]interface{}, error) {
	query, err := b.compiler.CompileQuery(q)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSkip(int64(q.Page.Skip))
	if q.Page.Limit > 0 {
		opts.SetLimit(int64(q.Page.Limit))
	}
	if sort := CompileSort(q.Sort); sort != nil {
		opts.SetSort(sort)
	}

	cur, err := b.collection(c).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find error: %w", err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo cursor error: %w", err)
	}

	rows := make([]map[string]interface{}, len(docs))
	for i, d := range docs {
		rows[i] = normalizeDoc(d)
	}
	return rows, nil
}

// Count returns the number of matching documents
func (b *MongoBackend) Count(ctx context.Context, c storage.Collection, q storage.Query) (int64, error) {
	query, err := b.compiler.CompileQuery(q)
	if err != nil {
		return 0, err
	}
	n, err := b.collection(c).CountDocuments(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("mongo count error: %w", err)
	}
	return n, nil
}

// One returns the first matching document
func (b *MongoBackend) One(ctx context.Context, c storage.Collection, q storage.Query) (map[string]interface{}, error) {
	query, err := b.compiler.CompileQuery(q)
	if err != nil {
		return nil, err
	}
	opts := options.FindOne().SetSkip(int64(q.Page.Skip))
	if sort := CompileSort(q.Sort); sort != nil {
		opts.SetSort(sort)
	}

	var doc bson.M
	if err := b.collection(c).FindOne(ctx, query, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("mongo find one error: %w", err)
	}
	return normalizeDoc(doc), nil
}

// Create inserts a document, allocating an ObjectID when _id is missing
func (b *MongoBackend) Create(ctx context.Context, c storage.Collection, row map[string]interface{}) (map[string]interface{}, error) {
	doc := prepareDoc(row)
	if _, err := b.collection(c).InsertOne(ctx, doc); err != nil {
		return nil, convertMongoError(err)
	}
	return normalizeDoc(doc), nil
}

// CreateMany inserts documents in one call
func (b *MongoBackend) CreateMany(ctx context.Context, c storage.Collection, rows []map[string]interface{}) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	docs := make([]interface{}, len(rows))
	for i, row := range rows {
		docs[i] = prepareDoc(row)
	}
	res, err := b.collection(c).InsertMany(ctx, docs)
	if err != nil {
		return 0, convertMongoError(err)
	}
	return int64(len(res.InsertedIDs)), nil
}

// Update sets fields on every matching document
func (b *MongoBackend) Update(ctx context.Context, c storage.Collection, q storage.Query, set map[string]interface{}) (int64, error) {
	query, err := b.compiler.CompileQuery(q)
	if err != nil {
		return 0, err
	}
	fields := bson.M{}
	for k, v := range set {
		if k != storage.IDField {
			fields[k] = v
		}
	}
	if len(fields) == 0 {
		return 0, nil
	}
	res, err := b.collection(c).UpdateMany(ctx, query, bson.M{"$set": fields})
	if err != nil {
		return 0, convertMongoError(err)
	}
	return res.MatchedCount, nil
}

// Destroy deletes every matching document
func (b *MongoBackend) Destroy(ctx context.Context, c storage.Collection, q storage.Query) (int64, error) {
	query, err := b.compiler.CompileQuery(q)
	if err != nil {
		return 0, err
	}
	res, err := b.collection(c).DeleteMany(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("mongo delete error: %w", err)
	}
	return res.DeletedCount, nil
}

// Aggregate sums fields with a $group stage
func (b *MongoBackend) Aggregate(ctx context.Context, c storage.Collection, q storage.Query, fields []string) (map[string]float64, error) {
	query, err := b.compiler.CompileQuery(q)
	if err != nil {
		return nil, err
	}
	group := bson.M{"_id": nil}
	for i, f := range fields {
		group["f"+strconv.Itoa(i)] = bson.M{"$sum": "$" + f}
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: query}},
		{{Key: "$group", Value: group}},
	}

	cur, err := b.collection(c).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongo aggregate error: %w", err)
	}
	var out []bson.M
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongo cursor error: %w", err)
	}

	sums := make(map[string]float64, len(fields))
	for i, f := range fields {
		sums[f] = 0
		if len(out) > 0 {
			if n, ok := toFloat(out[0]["f"+strconv.Itoa(i)]); ok {
				sums[f] = n
			}
		}
	}
	return sums, nil
}

// Close disconnects the client
func (b *MongoBackend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}

func prepareDoc(row map[string]interface{}) bson.M {
	doc := make(bson.M, len(row)+1)
	for k, v := range row {
		doc[k] = v
	}
	if id, ok := doc[storage.IDField]; !ok || id == nil || id == "" {
		doc[storage.IDField] = primitive.NewObjectID()
	} else {
		doc[storage.IDField] = CoerceObjectID(id)
	}
	return doc
}

func convertMongoError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", storage.ErrUniqueViolation, err)
	}
	return fmt.Errorf("mongo write error: %w", err)
}

// normalizeDoc converts driver types into plain values: ObjectIDs become
// hex strings and nested documents become maps
func normalizeDoc(d bson.M) map[string]interface{} {
	return normalize(d).(map[string]interface{})
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case int32:
		return int64(t)
	}
	return v
}
