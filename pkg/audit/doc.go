// Package audit consumes event records from the mediator's event channel
// or the kernel ring buffer.
//
// Each record is decoded, logged with structured fields (blocked accesses
// at warn, monitored ones at info, plain execs at debug) and appended to a
// fixed-size history served by the REST API:
//
//	consumer := audit.NewConsumer(channel, 1024)
//	go consumer.Run(ctx)
//	recent := consumer.Recent(50)
package audit
