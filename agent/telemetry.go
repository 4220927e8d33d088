package agent

import (
	"fmt"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/armon/go-metrics/datadog"
	"github.com/armon/go-metrics/prometheus"

	"github.com/policywatch/policywatch/agent/config"
	metricsHelper "github.com/policywatch/policywatch/sdk/helper/metrics"
)

// setupTelemetry is used to setup the telemetry sub-systems and returns
// the in-memory sink to be used in http configuration.
func (a *Agent) setupTelemetry(cfg *config.Telemetry) (*metrics.InmemSink, error) {

	// Setup telemetry using an aggregate of 10 second intervals for 1
	// minute. Expose the metrics over stderr when there is a SIGUSR1
	// received.
	inm := metrics.NewInmemSink(10*time.Second, time.Minute)
	metrics.DefaultInmemSignal(inm)

	var telConfig *config.Telemetry
	if cfg == nil {
		telConfig = &config.Telemetry{}
	} else {
		telConfig = cfg
	}

	metricsConf := metrics.DefaultConfig("policywatch")
	metricsConf.EnableHostname = !telConfig.DisableHostname

	// The hostname label is carried as a default label rather than via
	// the metrics config so sinks registered later see it too.
	var defaultLabels []metricsHelper.Label
	if telConfig.EnableHostnameLabel {
		defaultLabels = append(defaultLabels, metricsHelper.Label{
			Name: "host", Value: metricsConf.HostName,
		})
	}
	metricsHelper.SetDefaultLabels(defaultLabels)

	// Configure the statsite sink.
	var fanout metrics.FanoutSink
	if telConfig.StatsiteAddr != "" {
		sink, err := metrics.NewStatsiteSink(telConfig.StatsiteAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to setup statsite sink: %v", err)
		}
		fanout = append(fanout, sink)
	}

	// Configure the statsd sink.
	if telConfig.StatsdAddr != "" {
		sink, err := metrics.NewStatsdSink(telConfig.StatsdAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to setup statsd sink: %v", err)
		}
		fanout = append(fanout, sink)
	}

	// Configure the Prometheus sink.
	if telConfig.PrometheusMetrics || telConfig.PrometheusRetentionTime != 0 {
		prometheusOpts := prometheus.PrometheusOpts{
			Expiration: telConfig.PrometheusRetentionTime,
		}

		sink, err := prometheus.NewPrometheusSinkFrom(prometheusOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to setup Prometheus sink: %v", err)
		}
		fanout = append(fanout, sink)
	}

	// Configure the Datadog sink.
	if telConfig.DogStatsDAddr != "" {
		var tags []string

		if telConfig.DogStatsDTags != nil {
			tags = telConfig.DogStatsDTags
		}

		sink, err := datadog.NewDogStatsdSink(telConfig.DogStatsDAddr, metricsConf.HostName)
		if err != nil {
			return nil, fmt.Errorf("failed to setup DogStatsD sink: %v", err)
		}
		sink.SetTags(tags)
		fanout = append(fanout, sink)
	}

	// Add the in-memory sink to the fanout.
	fanout = append(fanout, inm)

	// Initialize the global sink.
	_, err := metrics.NewGlobal(metricsConf, fanout)
	if err != nil {
		return nil, fmt.Errorf("failed to setup global sink: %v", err)
	}
	return inm, nil
}
