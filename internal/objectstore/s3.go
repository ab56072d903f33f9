package objectstore

import (
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/sirupsen/logrus"
)

// S3Client lists and fetches objects from a public S3 bucket using
// anonymous credentials, the way teacher's cmd/l2serv loaded
// noaa-nexrad-level2 and unidata-nexrad-level2-chunks.
type S3Client struct {
	svc *s3.S3
}

// NewS3Client builds an anonymous-credential S3 client for region.
func NewS3Client(region string) (*S3Client, error) {
	sess, err := session.NewSession(&aws.Config{
		Credentials: credentials.AnonymousCredentials,
		Region:      aws.String(region),
	})
	if err != nil {
		return nil, err
	}
	return &S3Client{svc: s3.New(sess)}, nil
}

func (c *S3Client) List(ctx context.Context, bucket, prefix, delimiter string) (ListResult, error) {
	ctx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}

	var result ListResult
	err := c.svc.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			result.Objects = append(result.Objects, Object{
				Key:          aws.StringValue(obj.Key),
				LastModified: aws.TimeValue(obj.LastModified).Truncate(time.Second),
			})
		}
		for _, p := range page.CommonPrefixes {
			result.CommonPrefixes = append(result.CommonPrefixes, aws.StringValue(p.Prefix))
		}
		return true
	})
	if err != nil {
		logrus.WithField("component", "objectstore.s3").Warnf("list %s/%s: %v", bucket, prefix, err)
		return ListResult{}, err
	}

	return result, nil
}

func (c *S3Client) Get(ctx context.Context, bucket, key string) (io.ReadCloser, time.Time, error) {
	getCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)

	out, err := c.svc.GetObjectWithContext(getCtx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		cancel()
		logrus.WithField("component", "objectstore.s3").Warnf("get %s/%s: %v", bucket, key, err)
		return nil, time.Time{}, err
	}

	// the timeout context stays attached to the returned body, so
	// ConnectTimeout bounds the whole request, reading the body included;
	// cancel runs when the body is closed, not when this call returns.
	return cancelOnClose{ReadCloser: out.Body, cancel: cancel}, aws.TimeValue(out.LastModified).Truncate(time.Second), nil
}

// cancelOnClose releases a context.CancelFunc when the wrapped body is
// closed, so the connect-timeout context outlives the call that created it
// without leaking.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
