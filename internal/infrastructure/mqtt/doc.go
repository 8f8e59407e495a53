// Package mqtt connects the Gray Logic Hub to an MQTT broker.
//
// The broker serves two purposes:
//   - Thing states and events are mirrored to glhub/things/{id}/... so
//     external tooling can follow the hub without speaking JSON-RPC.
//   - Plugins that declare the "mqtt" hardware resource publish and
//     subscribe through the shared Client.
//
// A retained glhub/system/status message reports online/offline, with the
// Last Will covering crashes.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishRetained(mqtt.Topics{}.ThingState(id, "power"), []byte(`true`))
package mqtt
