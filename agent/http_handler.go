package agent

import (
	"net/http"

	"github.com/policywatch/policywatch/sdk"
)

// DisplayMetrics returns the aggregated metrics of the in-memory sink.
func (a *Agent) DisplayMetrics(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	return a.inMemSink.DisplayMetrics(resp, req)
}

// DisplayStatus returns the outcome of the most recent check cycle per
// cadence.
func (a *Agent) DisplayStatus(_ http.ResponseWriter, _ *http.Request) (interface{}, error) {
	a.statusLock.RLock()
	defer a.statusLock.RUnlock()

	out := make(map[sdk.CheckFrequency]*sdk.JobResult, len(a.lastResults))
	for cadence, result := range a.lastResults {
		out[cadence] = result
	}
	return out, nil
}

// ReloadAgent rebuilds the agent components from the configuration on
// disk.
func (a *Agent) ReloadAgent(_ http.ResponseWriter, _ *http.Request) (interface{}, error) {
	a.reload()
	return nil, nil
}
