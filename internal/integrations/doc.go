// Package integrations is the device/plugin runtime.
//
// It loads plugins, keeps the arena of configured things and drives
// each thing through its setup state machine. Clients reach it through
// the Integrations RPC namespace; plugins call back through Host.
//
// Work a plugin cannot finish on the spot (setup, actions, discovery)
// is parked in the pending.Correlator and resumed when the plugin
// reports, or failed with HardwareFailure at the deadline.
//
// Observers (the notification emitter, InfluxDB history, the MQTT state
// publisher) see every thing added, changed or removed and every state
// change and event.
//
// Thread Safety:
//   - The Runtime is not locked. It lives on the event loop, and so do
//     plugin calls and observer callbacks.
//   - Host methods are safe from any goroutine.
package integrations
