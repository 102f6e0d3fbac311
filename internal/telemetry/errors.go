package telemetry

import "errors"

// ErrDuplicateMetric is returned when a metric name is registered twice.
var ErrDuplicateMetric = errors.New("telemetry: metric already registered")
