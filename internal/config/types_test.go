package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationUnmarshalText(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{input: "30s", want: 30 * time.Second},
		{input: "5m", want: 5 * time.Minute},
		{input: "1h30m", want: 90 * time.Minute},
		{input: "0s", want: 0},
		{input: "-5s", wantErr: true},
		{input: "not-a-duration", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration())
		})
	}
}

func TestDurationMarshalJSON(t *testing.T) {
	out, err := json.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))
}

func TestSecretNeverLeaksInFormatting(t *testing.T) {
	s := Secret("hunter2")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", s))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.NotContains(t, fmt.Sprintf("%+v", s), "hunter2")
}

func TestSecretMarshalJSON(t *testing.T) {
	out, err := json.Marshal(map[string]Secret{"token": "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, `{"token":"[REDACTED]"}`, string(out))

	out, err = json.Marshal(Secret(""))
	require.NoError(t, err)
	assert.Equal(t, `""`, string(out))
}

func TestSecretValue(t *testing.T) {
	s := Secret("hunter2")
	assert.Equal(t, "hunter2", s.Value())
	assert.True(t, s.IsSet())
	assert.False(t, Secret("").IsSet())
}

func TestSecretUnmarshalText(t *testing.T) {
	var s Secret
	require.NoError(t, s.UnmarshalText([]byte("hunter2")))
	assert.Equal(t, "hunter2", s.Value())
}
