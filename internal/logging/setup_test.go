package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestLogFormat_UnmarshalText(t *testing.T) {
	tests := []struct {
		in      string
		want    LogFormat
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"text", FormatText, false},
		{"", FormatText, false},
		{"xml", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			var f LogFormat
			err := f.UnmarshalText([]byte(tc.in))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, f)
		})
	}
}

func TestNewLogger_Level(t *testing.T) {
	logger := NewLogger(FormatJSON, "warn")
	require.Equal(t, logrus.WarnLevel, logger.GetLevel())

	logger = NewLogger(FormatText, "bogus")
	require.Equal(t, logrus.DebugLevel, logger.GetLevel())
}
