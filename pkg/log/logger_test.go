package log

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogfmtLogger(t *testing.T) {
	for _, tc := range []struct {
		name     string
		minLevel Level
		log      func(l Logger)
		expected string
	}{
		{
			name:     "formats records",
			minLevel: LevelDebug,
			log: func(l Logger) {
				l.Debugf("visiting %s", "TABLE public.t1")
				l.Warnf("dangling reference %q", "VIEW public.v1")
			},
			expected: "ts=2023-05-04T10:00:00Z level=debug msg=\"visiting TABLE public.t1\"\n" +
				"ts=2023-05-04T10:00:00Z level=warn msg=\"dangling reference \\\"VIEW public.v1\\\"\"\n",
		},
		{
			name:     "filters below min level",
			minLevel: LevelWarn,
			log: func(l Logger) {
				l.Debugf("ignored")
				l.Infof("ignored")
				l.Errorf("boom")
			},
			expected: "ts=2023-05-04T10:00:00Z level=error msg=boom\n",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			l := LogfmtLogger(buf, tc.minLevel).(*logfmtLogger)
			l.now = func() time.Time {
				return time.Date(2023, 5, 4, 10, 0, 0, 0, time.UTC)
			}
			tc.log(l)
			assert.Equal(t, tc.expected, buf.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	for _, l := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		parsed, err := ParseLevel(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, parsed)
	}
	_, err := ParseLevel("verbose")
	assert.ErrorContains(t, err, "unknown log level")
}
