// Package influxdb records Gray Logic Hub thing history in InfluxDB.
//
// Every state change and event emitted by the device runtime can be
// mirrored as a point, giving a queryable history the JSON-RPC API does
// not keep itself.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history off
//	}
//	defer client.Close()
//
//	client.WriteThingState(thingID, classID, "temperature", 21.5, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are batched according
// to batch_size and flush_interval.
package influxdb
