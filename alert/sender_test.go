package alert

import (
	"bytes"
	"context"
	"testing"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
)

func TestLogSender_Send(t *testing.T) {
	var buf bytes.Buffer
	log := hclog.New(&hclog.LoggerOptions{Output: &buf})

	sender := &LogSender{Log: log, From: "alerts@example.com"}
	sr := sender.Send(context.Background(), "subscriber@example.com", "Policy update", "body")

	assert.True(t, sr.Success)
	assert.NotEmpty(t, sr.MessageID)
	assert.Empty(t, sr.Error)

	// The configured from address is stamped on the logged message.
	out := buf.String()
	assert.Contains(t, out, "from=alerts@example.com")
	assert.Contains(t, out, "to=subscriber@example.com")
}
