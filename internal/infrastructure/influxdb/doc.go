// Package influxdb writes remapd telemetry to InfluxDB v2.
//
// Two measurements are recorded: profile_activation (outcome and duration
// of each activation attempt) and, when influxdb.record_inputs is set,
// input_event (every control value a physical device delivers to an active
// binding). Writes are batched and never block; failures surface through
// SetOnError and Stats counts what was written or dropped.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteActivation(influxdb.ActivationEvent{Profile: "Racing", OK: true})
package influxdb
