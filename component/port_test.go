package component

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirection(t *testing.T) {
	tests := []struct {
		name      string
		direction Direction
		expected  string
	}{
		{"input direction", DirectionInput, "input"},
		{"output direction", DirectionOutput, "output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.direction) != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, string(tt.direction))
			}
		})
	}
}

func TestPortable(t *testing.T) {
	tests := []struct {
		name        string
		port        Portable
		resourceID  string
		isExclusive bool
		portType    string
	}{
		{
			name:        "source tap",
			port:        TapPort{Connector: "connector0", Tap: "src_0", State: "WAITING"},
			resourceID:  "tap:connector0/src_0",
			isExclusive: true,
			portType:    "tap",
		},
		{
			name:        "events subject",
			port:        NATSPort{Subject: "mediaconnector.events.connector0.>"},
			resourceID:  "nats:mediaconnector.events.connector0.>",
			isExclusive: false,
			portType:    "nats",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.port.ResourceID() != tt.resourceID {
				t.Errorf("Expected ResourceID %s, got %s", tt.resourceID, tt.port.ResourceID())
			}
			if tt.port.IsExclusive() != tt.isExclusive {
				t.Errorf("Expected IsExclusive %t, got %t", tt.isExclusive, tt.port.IsExclusive())
			}
			if tt.port.Type() != tt.portType {
				t.Errorf("Expected Type %s, got %s", tt.portType, tt.port.Type())
			}
		})
	}
}

func TestPort_JSONKeepsConfigType(t *testing.T) {
	port := Port{
		Name:      "src_1",
		Direction: DirectionOutput,
		Config: TapPort{
			Connector: "connector0",
			Tap:       "src_1",
			State:     "LINKED",
			Caps:      "video/x-h264",
			Target:    "agnosticbin0:src_0",
		},
	}

	data, err := json.Marshal(port)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"tap"`)

	var decoded Port
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, port, decoded)
}

func TestPort_UnmarshalUnknownType(t *testing.T) {
	var p Port
	err := json.Unmarshal([]byte(`{"name":"x","config":{"type":"udp","data":{}}}`), &p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config type: udp")
}

func TestPort_UnmarshalWithoutConfig(t *testing.T) {
	var p Port
	require.NoError(t, json.Unmarshal([]byte(`{"name":"sink_0","direction":"input"}`), &p))
	assert.Equal(t, "sink_0", p.Name)
	assert.Nil(t, p.Config)
}

func TestDependencies_GetLogger(t *testing.T) {
	var deps Dependencies
	assert.NotNil(t, deps.GetLogger())
	assert.NotNil(t, deps.GetLoggerWithComponent("connector0"))
}

func TestAsLifecycleComponent(t *testing.T) {
	_, ok := AsLifecycleComponent(nil)
	assert.False(t, ok)
	assert.Equal(t, "started", StateStarted.String())
	assert.Equal(t, "unknown", State(99).String())
}
