package metrics

import (
	"sync/atomic"
	"time"

	m "github.com/armon/go-metrics"
)

// defaultLabels is the label set applied to every data point emitted.
// An atomic value protects against concurrent access when the default
// labels are updated after telemetry initialization.
var defaultLabels atomic.Value

// Label is a wrapper around m.Label so callers don't have to juggle
// importing both packages when emitting metrics.
type Label = m.Label

// SetDefaultLabels sets defaultLabels with the configured default set
// of labels.
func SetDefaultLabels(labels []Label) { defaultLabels.Store(labels) }

func loadDefaultLabels() []Label {
	labels, ok := defaultLabels.Load().([]Label)
	if !ok {
		return nil
	}
	return labels
}

// SetGauge wraps m.SetGaugeWithLabels and sets the default labels on
// the emitted metric.
func SetGauge(key []string, val float32) {
	m.SetGaugeWithLabels(key, val, loadDefaultLabels())
}

// MeasureSince wraps m.MeasureSinceWithLabels and sets the default
// labels on the emitted metric.
func MeasureSince(key []string, start time.Time) {
	m.MeasureSinceWithLabels(key, start, loadDefaultLabels())
}

// MeasureSinceWithLabels wraps m.MeasureSinceWithLabels and appends the
// default labels to the passed labels on the emitted metric.
func MeasureSinceWithLabels(key []string, start time.Time, labels []Label) {
	m.MeasureSinceWithLabels(key, start, append(labels, loadDefaultLabels()...))
}

// IncrCounter wraps m.IncrCounterWithLabels and sets the default labels
// on the emitted metric.
func IncrCounter(key []string, val float32) {
	m.IncrCounterWithLabels(key, val, loadDefaultLabels())
}

// IncrCounterWithLabels wraps m.IncrCounterWithLabels and appends the
// default labels to the passed labels on the emitted metric.
func IncrCounterWithLabels(key []string, val float32, labels []Label) {
	m.IncrCounterWithLabels(key, val, append(labels, loadDefaultLabels()...))
}
