package http

import (
	"testing"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/policywatch/policywatch/agent"
	"github.com/policywatch/policywatch/agent/config"
)

func TestServer(t *testing.T, enableProm bool) (*Server, *agent.MockAgentHTTP, func()) {
	cfg := &config.HTTP{
		BindAddress: "127.0.0.1",
		BindPort:    0, // Use next available port.
	}

	mock := &agent.MockAgentHTTP{}
	s, err := NewHTTPServer(false, enableProm, cfg, hclog.NewNullLogger(), mock)
	if err != nil {
		t.Fatalf("failed to start test server: %v", err)
	}

	return s, mock, func() {
		s.Stop()
	}
}
