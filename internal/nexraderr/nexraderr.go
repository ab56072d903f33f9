// Package nexraderr defines the sentinel error kinds shared across the
// ingestion pipeline (spec.md section 7). Callers use errors.Is against
// these values; no component defines its own parallel error type.
package nexraderr

import "errors"

var (
	// NetworkUnavailable marks an object-store list/get failure believed to
	// be transient (connection refused, timeout, DNS failure).
	NetworkUnavailable = errors.New("nexrad: network unavailable")

	// NotFound marks a missing key, prefix, or record.
	NotFound = errors.New("nexrad: not found")

	// DecodeFailure marks a radar file that failed to decode.
	DecodeFailure = errors.New("nexrad: decode failure")

	// InvalidData marks a scan missing a moment block the caller requested.
	InvalidData = errors.New("nexrad: invalid data")

	// InvalidProduct marks a moment block type with no corresponding loaded
	// product.
	InvalidProduct = errors.New("nexrad: invalid product")

	// NoChange marks a sweep recompute request whose inputs are identical to
	// the last computed sweep.
	NoChange = errors.New("nexrad: no change")

	// NotLoaded marks a record whose weak reference has expired and has not
	// yet been reloaded.
	NotLoaded = errors.New("nexrad: not loaded")

	// NoUpdate marks a refresh cycle that found no new objects.
	NoUpdate = errors.New("nexrad: no update")

	// Cancelled marks a refresh timer or in-flight load cancelled by
	// shutdown or resubscription.
	Cancelled = errors.New("nexrad: cancelled")

	// Timeout marks an object-store call that exceeded its connect timeout.
	Timeout = errors.New("nexrad: timeout")
)
