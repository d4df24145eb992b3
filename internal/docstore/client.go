// Package docstore reads the training records from MongoDB.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/ILLUVRSE/training-pipeline/internal/dataset"
	"github.com/ILLUVRSE/training-pipeline/internal/pipelineerr"
)

type Options struct {
	URL      string
	Database string
	// Timeout bounds server selection and the initial ping.
	Timeout     time.Duration
	MaxPoolSize uint64
	MinPoolSize uint64
}

// Client is an explicitly opened connection owned by the caller, who must
// Close it.
type Client struct {
	mongo *mongo.Client
	db    *mongo.Database
}

func Connect(ctx context.Context, opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, pipelineerr.Configuration("connect document store", errors.New("connection URL is empty"))
	}
	if opts.Database == "" {
		return nil, pipelineerr.Configuration("connect document store", errors.New("database name is empty"))
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxPoolSize == 0 {
		opts.MaxPoolSize = 50
	}
	if opts.MinPoolSize == 0 {
		opts.MinPoolSize = 5
	}

	clientOpts := options.Client().
		ApplyURI(opts.URL).
		SetServerSelectionTimeout(opts.Timeout).
		SetConnectTimeout(opts.Timeout).
		SetMaxPoolSize(opts.MaxPoolSize).
		SetMinPoolSize(opts.MinPoolSize).
		SetRetryWrites(true)
	mc, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, pipelineerr.DataAccess("connect document store", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := mc.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = mc.Disconnect(context.Background())
		return nil, pipelineerr.DataAccess("ping document store", err)
	}
	return &Client{mongo: mc, db: mc.Database(opts.Database)}, nil
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.mongo == nil {
		return nil
	}
	return c.mongo.Disconnect(ctx)
}

// ExportCollection loads every document of collection as a frame.
func (c *Client) ExportCollection(ctx context.Context, collection string) (dataset.Frame, error) {
	cur, err := c.db.Collection(collection).Find(ctx, bson.M{})
	if err != nil {
		return dataset.Frame{}, pipelineerr.DataAccess("find "+collection, err)
	}
	defer cur.Close(ctx)

	var docs []bson.D
	if err := cur.All(ctx, &docs); err != nil {
		return dataset.Frame{}, pipelineerr.DataAccess("read "+collection, err)
	}
	return DocumentsToFrame(docs), nil
}

// DocumentsToFrame flattens top-level fields into string cells. Columns follow
// first appearance, the _id field is dropped, absent fields and "na" become
// empty cells.
func DocumentsToFrame(docs []bson.D) dataset.Frame {
	index := map[string]int{}
	var f dataset.Frame
	for _, doc := range docs {
		for _, e := range doc {
			if e.Key == "_id" {
				continue
			}
			if _, ok := index[e.Key]; !ok {
				index[e.Key] = len(f.Columns)
				f.Columns = append(f.Columns, e.Key)
			}
		}
	}
	for _, doc := range docs {
		row := make([]string, len(f.Columns))
		for _, e := range doc {
			if i, ok := index[e.Key]; ok {
				row[i] = dataset.NormalizeMissing(cell(e.Value))
			}
		}
		f.Rows = append(f.Rows, row)
	}
	return f
}

func cell(v interface{}) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case int32, int64, int:
		return fmt.Sprintf("%d", vv)
	case float64:
		return fmt.Sprintf("%g", vv)
	case bool:
		if vv {
			return "1"
		}
		return "0"
	}
	return fmt.Sprint(v)
}
