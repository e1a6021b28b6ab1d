// Package tracer is a small tracing abstraction over OpenTelemetry.
//
// Services depend on the Tracer interface; the process wires OTelTracer in
// production and NoopTracer everywhere else.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// InstrumentationName is the OpenTelemetry scope used by the credential engine.
const InstrumentationName = "fedcred/credential"

// Span represents an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks the span failed.
	// End must be called exactly once, typically via defer.
	End(err error)

	SetAttributes(attrs ...Attribute)

	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
//
//	ctx, span := t.Start(ctx, tracer.SpanVerify, tracer.String(tracer.AttrCredentialID, id))
//	defer span.End(err)
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

func Float64(key string, value float64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashFederationID returns a short SHA-256 prefix of a federation number so traces
// can be correlated without carrying the number itself.
func HashFederationID(number string) string {
	if number == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(number))
	return hex.EncodeToString(hash[:8])
}

// Span names.
const (
	SpanIssue       = "credential.issue"
	SpanVerify      = "credential.verify"
	SpanVerifyBulk  = "credential.verify_bulk"
	SpanTransition  = "credential.transition"
	SpanRenew       = "credential.renew"
	SpanSweep       = "credential.sweep"
	SpanExport      = "credential.export"
	SpanStats       = "credential.stats"
	SpanReadAttempt = "credential.read_attempt"
)

// Attribute keys.
const (
	AttrCredentialID = "credential.id"
	AttrSubjectType  = "credential.subject_type"
	AttrFederationID = "credential.federation_id_hash"
	AttrStatus       = "credential.status"
	AttrValid        = "verification.valid"
	AttrReason       = "verification.reason"
	AttrChannel      = "verification.channel"
	AttrBatchSize    = "batch.size"
	AttrCacheHit     = "cache.hit"
	AttrAttempt      = "retry.attempt"
	AttrSweepExpired = "sweep.expired"
)

// Event names.
const (
	EventRetry       = "retry"
	EventLazyExpired = "lazy_expired"
)
