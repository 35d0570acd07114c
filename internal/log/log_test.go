package log

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		format  Format
		wantErr bool
	}{
		{FormatJSON, false},
		{FormatConsole, false},
		{"json", false},
		{"xml", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			o := Options{Format: tt.format}
			err := o.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOptions_AddFlags(t *testing.T) {
	o := NewDefaultOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{"--log-debug", "--log-format=JSON"}))
	assert.True(t, o.Debug)
	assert.Equal(t, FormatJSON, o.Format)
}

func TestNew(t *testing.T) {
	for _, format := range AvailableFormats {
		logger := New(true, format)
		require.NotNil(t, logger)
		assert.True(t, logger.Core().Enabled(-1))
	}
	assert.False(t, New(false, FormatConsole).Core().Enabled(-1))
}
