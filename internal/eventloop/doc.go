// Package eventloop provides the single execution context the Gray Logic
// Hub core runs on.
//
// Transports deliver connect, data and disconnect events by posting to
// the loop from their reader goroutines. Plugin callbacks, correlator
// deadlines and hardware fan-out are posted the same way. Because tasks
// run strictly one after another, per-client frame order is preserved and
// the runtime needs no locks for its own state.
//
// Usage:
//
//	loop := eventloop.New()
//	go loop.Run(ctx)
//
//	loop.Post(func() { registry.UnregisterClient(id) })
//	loop.AfterFunc(30*time.Second, func() { correlator.expire(opID) })
package eventloop
