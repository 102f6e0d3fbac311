// Package telemetry turns profile.Context observations into Prometheus
// metrics and InfluxDB points.
//
// Metrics serves /metrics through its own registry. InfluxSink writes one
// point per delivered input and per activation when InfluxDB is enabled.
// Fanout combines both into the single profile.Recorder the context takes.
package telemetry
