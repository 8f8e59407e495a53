// Package hardware brokers the hub's scarce shared resources among
// integration plugins.
//
// Resources:
//   - timer: a periodic tick fanned out to TickConsumers
//   - network: one shared *http.Client with bounded concurrency; each
//     request returns a Reply whose completion runs on the event loop
//   - bluetooth-le: the single BLE central (BlueZ over D-Bus); scan
//     results are fanned out to BLEConsumers
//   - discovery: an mDNS browse feed fanned out to DiscoveryConsumers
//   - mqtt: the process-wide MQTT connection, multiplexed per plugin
//
// A plugin only ever sees the resources its descriptor declares. Every
// callback into plugin code is posted to the event loop, so plugins
// never need their own locking.
package hardware
