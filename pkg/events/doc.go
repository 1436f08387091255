// Package events defines the audit records emitted by the mediation hooks
// and the Channel that carries them to a consumer.
//
// Records are packed little-endian structures prefixed with a one-byte type
// tag, identical to what the kernel programs write into their ring buffer,
// so a single Decode serves both sources.
//
// The Channel is a multi-producer, single-consumer ring:
//
//	rec, ok := ch.Reserve(events.ExecEventSize)
//	if ok {
//	    ev.MarshalTo(rec.Data)
//	    rec.Submit()
//	}
//
// Reservation never blocks. When the ring is full the event is dropped and
// counted; the caller's decision is unaffected.
package events
