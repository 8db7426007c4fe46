// Package cluster provides the pieces shared by the coordinator and the worker
// agents: the framed binary wire protocol, the connected-worker type and the
// retry policy used around connection attempts.
//
// # Wire Protocol
//
// Every message on a coordinator/worker connection is a single frame:
//
//	┌──────────────────────┬──────────────────────────────┐
//	│ length (uint32, BE)  │ payload (length bytes)       │
//	└──────────────────────┴──────────────────────────────┘
//
// The payload is a borsh encoded sequence of float64 values:
//
//	┌──────────────────────┬──────────────────────────────┐
//	│ count (uint32, LE)   │ count × float64 (LE)         │
//	└──────────────────────┴──────────────────────────────┘
//
// Exactly two frames are exchanged per worker and run: the coordinator sends
// the chunk, the worker answers with the sorted chunk. There is no version
// field, no checksum and no other message type.
//
// # Errors
//
//   - ErrEndOfStream: the peer closed the connection before a full frame arrived
//   - ErrFrameTooLarge: the length prefix exceeds the configured maximum
//   - ErrPayloadDecode: the payload does not decode into a value sequence
//
// ErrFrameTooLarge and ErrPayloadDecode are framing errors; the coordinator
// treats them like any other dispatch failure for that worker.
//
// # Retries
//
// RetryPolicy captures the attempt ceiling and backoff used by the worker
// agent when connecting:
//
//	policy := cluster.RetryPolicy{
//	    MaxAttempts: 3,
//	    Backoff:     cluster.LinearBackoff(5 * time.Second),
//	}
//	err := policy.Do(ctx, func(attempt int) error {
//	    return runOnce(ctx)
//	})
package cluster
