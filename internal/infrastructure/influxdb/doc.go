// Package influxdb writes relay telemetry to InfluxDB v2.
//
// Each applied actuation becomes a relay_actuation point and each broker
// session transition a relay_session point, so relay activity can be
// graphed next to other home telemetry.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer client.Close()
//
//	client.WriteActuation("17", "High", "home/relay")
//
// # Error Handling
//
// Writes are batched (batch_size, flush_interval) and never block the
// caller. Batch failures are delivered to the SetOnError callback.
package influxdb
