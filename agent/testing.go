package agent

import "net/http"

// MockAgentHTTP satisfies the agent HTTP interface for server tests.
type MockAgentHTTP struct {
	Reloads int
}

func (m *MockAgentHTTP) DisplayMetrics(http.ResponseWriter, *http.Request) (interface{}, error) {
	return map[string]string{"metrics": "ok"}, nil
}

func (m *MockAgentHTTP) DisplayStatus(http.ResponseWriter, *http.Request) (interface{}, error) {
	return map[string]string{"status": "idle"}, nil
}

func (m *MockAgentHTTP) ReloadAgent(http.ResponseWriter, *http.Request) (interface{}, error) {
	m.Reloads++
	return nil, nil
}
