package metrics

import (
	"fmt"
	"strings"
	"testing"
	"time"

	m "github.com/armon/go-metrics"
	"github.com/stretchr/testify/assert"
)

func Test_IncrCounterWithLabels(t *testing.T) {
	testCases := []struct {
		name          string
		inputLabels   []Label
		defaultLabels []Label
	}{
		{
			name: "no default labels",
			inputLabels: []Label{
				{Name: "cadence", Value: "daily"},
			},
		},
		{
			name: "default labels appended to input labels",
			inputLabels: []Label{
				{Name: "cadence", Value: "daily"},
			},
			defaultLabels: []Label{
				{Name: "region", Value: "eu"},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sink := setupTestSink()
			SetDefaultLabels(tc.defaultLabels)

			IncrCounterWithLabels([]string{"alert", "email", "sent"}, 1, tc.inputLabels)

			intervals := sink.Data()
			if len(intervals) > 1 {
				t.Skip("detected interval crossing")
			}

			want := append(append([]Label{}, tc.inputLabels...), tc.defaultLabels...)

			counter, ok := intervals[0].Counters[expectedName([]string{"alert", "email", "sent"}, want)]
			assert.True(t, ok, tc.name)
			assert.Equal(t, float64(1), counter.Sum, tc.name)
			assert.ElementsMatch(t, want, counter.Labels, tc.name)
		})
	}
}

func Test_IncrCounterWithNilDefaults(t *testing.T) {
	sink := setupTestSink()
	SetDefaultLabels(nil)

	IncrCounter([]string{"scheduler", "sources", "failed"}, 1)

	intervals := sink.Data()
	if len(intervals) > 1 {
		t.Skip("detected interval crossing")
	}

	counter, ok := intervals[0].Counters["scheduler.sources.failed"]
	assert.True(t, ok)
	assert.Equal(t, float64(1), counter.Sum)
}

func Test_MeasureSince(t *testing.T) {
	sink := setupTestSink()
	SetDefaultLabels([]Label{{Name: "region", Value: "eu"}})

	MeasureSince([]string{"scheduler", "cycle", "daily"}, time.Now())

	intervals := sink.Data()
	if len(intervals) > 1 {
		t.Skip("detected interval crossing")
	}

	sample, ok := intervals[0].Samples[expectedName([]string{"scheduler", "cycle", "daily"}, []Label{{Name: "region", Value: "eu"}})]
	assert.True(t, ok)
	assert.NotZero(t, sample.Sum)
}

func setupTestSink() *m.InmemSink {
	inMem := m.NewInmemSink(1000000*time.Hour, 2000000*time.Hour)
	cfg := m.DefaultConfig("")
	cfg.EnableHostname = false
	_, _ = m.NewGlobal(cfg, inMem)
	return inMem
}

func expectedName(key []string, labels []Label) string {
	name := strings.Join(key, ".")
	for _, l := range labels {
		name = fmt.Sprintf("%s;%s=%s", name, l.Name, l.Value)
	}
	return name
}
