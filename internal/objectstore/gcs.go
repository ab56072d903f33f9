package objectstore

import (
	"context"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSClient lists and fetches objects from a public GCS bucket without
// credentials, grounded on teacher's cmd/l2serv/l3.go listGCS helper against
// gcp-public-data-nexrad-l3-realtime.
type GCSClient struct {
	client *storage.Client
}

// NewGCSClient builds an unauthenticated GCS client suited to reading a
// public dataset bucket.
func NewGCSClient(ctx context.Context) (*GCSClient, error) {
	client, err := storage.NewClient(ctx, option.WithoutAuthentication())
	if err != nil {
		return nil, err
	}
	return &GCSClient{client: client}, nil
}

func (c *GCSClient) List(ctx context.Context, bucket, prefix, delimiter string) (ListResult, error) {
	ctx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	it := c.client.Bucket(bucket).Objects(ctx, &storage.Query{
		Prefix:    prefix,
		Delimiter: delimiter,
	})

	var result ListResult
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logrus.WithField("component", "objectstore.gcs").Warnf("list %s/%s: %v", bucket, prefix, err)
			return ListResult{}, err
		}
		if attrs.Prefix != "" {
			result.CommonPrefixes = append(result.CommonPrefixes, attrs.Prefix)
			continue
		}
		result.Objects = append(result.Objects, Object{
			Key:          attrs.Name,
			LastModified: attrs.Updated.Truncate(time.Second),
		})
	}

	return result, nil
}

func (c *GCSClient) Get(ctx context.Context, bucket, key string) (io.ReadCloser, time.Time, error) {
	getCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)

	attrs, err := c.client.Bucket(bucket).Object(key).Attrs(getCtx)
	if err != nil {
		cancel()
		return nil, time.Time{}, err
	}

	r, err := c.client.Bucket(bucket).Object(key).NewReader(getCtx)
	if err != nil {
		cancel()
		logrus.WithField("component", "objectstore.gcs").Warnf("get %s/%s: %v", bucket, key, err)
		return nil, time.Time{}, err
	}

	return cancelOnClose{ReadCloser: r, cancel: cancel}, attrs.Updated.Truncate(time.Second), nil
}
