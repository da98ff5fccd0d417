package sipp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/byte4ever/sipp_tester/sipptest/sipp"
)

func TestParseStatistics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output string
		want   map[string]string
	}{
		{
			name:   "summary line",
			output: "Total: 1 Messages, 0 Errors, 0 Failures",
			want: map[string]string{
				"total_messages": "1",
				"errors":         "0",
				"failures":       "0",
			},
		},
		{
			name: "embedded in sipp output",
			output: "Resolving remote host '172.18.0.3'... Done\n" +
				"------------------------------ Scenario Screen --------\n" +
				"  Total: 12 Messages, 1 Errors, 2 Failures\n" +
				"Exit code: 1\n",
			want: map[string]string{
				"total_messages": "12",
				"errors":         "1",
				"failures":       "2",
			},
		},
		{
			name:   "partial line",
			output: "Total: 3 Messages",
			want:   map[string]string{"total_messages": "3"},
		},
		{
			name:   "last line wins",
			output: "Total: 1 Messages, 0 Errors\nTotal: 2 Messages, 1 Errors\n",
			want: map[string]string{
				"total_messages": "2",
				"errors":         "1",
			},
		},
		{
			name:   "total without messages",
			output: "Total-time: 1.002 s\nTotal: 4 calls",
			want:   map[string]string{},
		},
		{
			name:   "empty",
			output: "",
			want:   map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, sipp.ParseStatistics(tt.output))
		})
	}
}
