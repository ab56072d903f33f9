// Package objectstore implements the anonymous-credential object store
// client contract providers build on (spec.md section 4.2, section 6):
// list a prefix (optionally grouped by a delimiter into common prefixes)
// and fetch the bytes and last-modified time of a single key. There are no
// retries or backoff here; callers retry through the refresh scheduler.
package objectstore

import (
	"context"
	"io"
	"time"
)

// Object is one listed key with its last-modified time.
type Object struct {
	Key          string
	LastModified time.Time
}

// ListResult is the outcome of a List call: either a flat list of object
// keys (delimiter == "") or a list of common prefixes (delimiter != "").
type ListResult struct {
	Objects        []Object
	CommonPrefixes []string
}

// Client is the capability set every object store backend (S3, GCS) must
// implement. Anonymous credentials, 10 second per-call timeout
// (ConnectTimeout).
type Client interface {
	// List lists keys under prefix. When delimiter is non-empty, keys are
	// grouped into common prefixes instead of returned individually.
	List(ctx context.Context, bucket, prefix, delimiter string) (ListResult, error)

	// Get fetches the body and last-modified time (seconds precision) of a
	// single key.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, time.Time, error)
}

// ConnectTimeout is the timeout applied to every list/get call (spec.md
// section 4.2). It is a context deadline on the whole call (for Get, reading
// the returned body included), not a bound on connection setup alone.
const ConnectTimeout = 10 * time.Second
