package docstore

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ohler55/ojg/oj"
	"github.com/redis/go-redis/v9"

	"github.com/mirkwood-lang/mirkwood/internal/storage"
)

// DefaultKeyPrefix namespaces document keys
const DefaultKeyPrefix = "mirkwood:"

// RedisBackend keeps each collection as a hash of JSON documents keyed by
// _id plus a list holding insertion order. Queries are compiled like for
// MongoDB and evaluated with Match.
type RedisBackend struct {
	client   *redis.Client
	prefix   string
	compiler *Compiler
}

// NewRedisBackend creates a backend over an existing client
func NewRedisBackend(client *redis.Client, keyPrefix string) *RedisBackend {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisBackend{
		client:   client,
		prefix:   keyPrefix,
		compiler: NewCompiler(nil),
	}
}

// OpenRedis is the storage.Factory for the redis adapter
func OpenRedis(ctx context.Context, cfg storage.ConnectionConfig) (storage.Adapter, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		port := cfg.Port
		if port == 0 {
			port = 6379
		}
		db := 0
		if cfg.Database != "" {
			n, err := strconv.Atoi(cfg.Database)
			if err != nil {
				return nil, fmt.Errorf("redis database must be a number: %w", err)
			}
			db = n
		}
		opts = &redis.Options{
			Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
			Username: cfg.User,
			Password: cfg.Password,
			DB:       db,
		}
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping error: %w", err)
	}
	return NewRedisBackend(client, cfg.KeyPrefix), nil
}

func (b *RedisBackend) docsKey(c storage.Collection) string {
	return b.prefix + c.Name
}

func (b *RedisBackend) idsKey(c storage.Collection) string {
	return b.prefix + c.Name + ":ids"
}

// load returns every document in insertion order
func (b *RedisBackend) load(ctx context.Context, c storage.Collection) ([]map[string]interface{}, error) {
	ids, err := b.client.LRange(ctx, b.idsKey(c), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange error: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	raw, err := b.client.HMGet(ctx, b.docsKey(c), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget error: %w", err)
	}

	docs := make([]map[string]interface{}, 0, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		doc, err := decodeDoc(s)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", ids[i], err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (b *RedisBackend) matching(ctx context.Context, c storage.Collection, q storage.Query) ([]map[string]interface{}, error) {
	query, err := b.compiler.CompileQuery(q)
	if err != nil {
		return nil, err
	}
	docs, err := b.load(ctx, c)
	if err != nil {
		return nil, err
	}
	out := docs[:0]
	for _, doc := range docs {
		ok, err := Match(query, doc)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

// All returns the matching documents
func (b *RedisBackend) All(ctx context.Context, c storage.Collection, q storage.Query) ([]map[string]interface{}, error) {
	docs, err := b.matching(ctx, c, q)
	if err != nil {
		return nil, err
	}
	sortRows(docs, q.Sort)
	return pageRows(docs, q.Page), nil
}

// Count returns the number of matching documents
func (b *RedisBackend) Count(ctx context.Context, c storage.Collection, q storage.Query) (int64, error) {
	docs, err := b.matching(ctx, c, q)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// One returns the first matching document
func (b *RedisBackend) One(ctx context.Context, c storage.Collection, q storage.Query) (map[string]interface{}, error) {
	q.Page.Limit = 1
	docs, err := b.All(ctx, c, q)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, storage.ErrNotFound
	}
	return docs[0], nil
}

// Create stores a document, allocating a UUID _id when missing
func (b *RedisBackend) Create(ctx context.Context, c storage.Collection, row map[string]interface{}) (map[string]interface{}, error) {
	doc := make(map[string]interface{}, len(row)+1)
	for k, v := range row {
		doc[k] = v
	}
	if id, ok := doc[storage.IDField]; !ok || id == nil || id == "" {
		doc[storage.IDField] = uuid.NewString()
	}
	id := fmt.Sprint(doc[storage.IDField])

	data, err := oj.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("document encode error: %w", err)
	}

	created, err := b.client.HSetNX(ctx, b.docsKey(c), id, data).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hsetnx error: %w", err)
	}
	if !created {
		return nil, fmt.Errorf("%w: _id %s", storage.ErrUniqueViolation, id)
	}
	if err := b.client.RPush(ctx, b.idsKey(c), id).Err(); err != nil {
		return nil, fmt.Errorf("redis rpush error: %w", err)
	}

	// return the stored form so numbers read back the way they were written
	return decodeDoc(string(data))
}

// CreateMany stores documents one by one
func (b *RedisBackend) CreateMany(ctx context.Context, c storage.Collection, rows []map[string]interface{}) (int64, error) {
	var n int64
	for _, row := range rows {
		if _, err := b.Create(ctx, c, row); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Update merges set into every matching document
func (b *RedisBackend) Update(ctx context.Context, c storage.Collection, q storage.Query, set map[string]interface{}) (int64, error) {
	docs, err := b.matching(ctx, c, q)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	values := make([]interface{}, 0, len(docs)*2)
	for _, doc := range docs {
		for k, v := range set {
			if k == storage.IDField {
				continue
			}
			doc[k] = v
		}
		data, err := oj.Marshal(doc)
		if err != nil {
			return 0, fmt.Errorf("document encode error: %w", err)
		}
		values = append(values, fmt.Sprint(doc[storage.IDField]), string(data))
	}

	if err := b.client.HSet(ctx, b.docsKey(c), values...).Err(); err != nil {
		return 0, fmt.Errorf("redis hset error: %w", err)
	}
	return int64(len(docs)), nil
}

// Destroy removes every matching document
func (b *RedisBackend) Destroy(ctx context.Context, c storage.Collection, q storage.Query) (int64, error) {
	docs, err := b.matching(ctx, c, q)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, doc := range docs {
			id := fmt.Sprint(doc[storage.IDField])
			pipe.HDel(ctx, b.docsKey(c), id)
			pipe.LRem(ctx, b.idsKey(c), 1, id)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis delete error: %w", err)
	}
	return int64(len(docs)), nil
}

// Aggregate sums numeric fields over the matching documents
func (b *RedisBackend) Aggregate(ctx context.Context, c storage.Collection, q storage.Query, fields []string) (map[string]float64, error) {
	docs, err := b.matching(ctx, c, q)
	if err != nil {
		return nil, err
	}
	sums := make(map[string]float64, len(fields))
	for _, f := range fields {
		sums[f] = 0
		for _, doc := range docs {
			if v, ok := lookup(doc, f); ok {
				if n, ok := toFloat(v); ok {
					sums[f] += n
				}
			}
		}
	}
	return sums, nil
}

// Close closes the client
func (b *RedisBackend) Close(context.Context) error {
	return b.client.Close()
}

func decodeDoc(s string) (map[string]interface{}, error) {
	v, err := oj.ParseString(s)
	if err != nil {
		return nil, fmt.Errorf("document decode error: %w", err)
	}
	doc, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("document decode error: expected an object, got %T", v)
	}
	return doc, nil
}
