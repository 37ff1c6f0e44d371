package types

import "errors"

var (
	// ErrMalformedPayload marks a message body that is not valid JSON.
	// Permanent failure class: dead-letter, never requeue.
	ErrMalformedPayload = errors.New("malformed heartbeat payload")

	// ErrMissingUUID marks a payload without a usable identifier.
	// Same permanent failure class as a malformed body.
	ErrMissingUUID = errors.New("heartbeat payload missing uuid")
)

// IsPermanent reports whether an ingestion error can never succeed on
// redelivery and must be routed to the dead-letter queue.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformedPayload) || errors.Is(err, ErrMissingUUID)
}
