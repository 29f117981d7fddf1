package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChildLoggersCarryFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	cases := []struct {
		name     string
		log      func()
		expected string
	}{
		{
			name: "component",
			log: func() {
				logger := WithComponent("convergence")
				logger.Info().Msg("cycle started")
			},
			expected: `"component":"convergence"`,
		},
		{
			name: "dataset",
			log: func() {
				logger := WithDataset("0f6a5c12-9f1e-4b57-92b5-2dc3b09f0a11")
				logger.Info().Msg("volume handed off")
			},
			expected: `"dataset_id":"0f6a5c12-9f1e-4b57-92b5-2dc3b09f0a11"`,
		},
		{
			name: "application",
			log: func() {
				logger := WithApplication("site")
				logger.Debug().Msg("application started")
			},
			expected: `"application":"site"`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf.Reset()
			tc.log()
			assert.Contains(t, buf.String(), tc.expected)
		})
	}
}

func TestInitRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, JSONOutput: true, Output: &buf})

	logger := WithComponent("agent")
	logger.Info().Msg("suppressed")
	assert.Empty(t, buf.String())

	logger.Warn().Msg("emitted")
	assert.Contains(t, buf.String(), "emitted")
}
