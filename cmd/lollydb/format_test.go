package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0:00"},
		{259000, "4:19"},
		{3600000 + 61000, "1:01:01"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.ms))
	}
}

func TestFormatUnix(t *testing.T) {
	assert.Equal(t, "never", formatUnix(0))
	assert.Contains(t, formatUnix(time.Now().Add(-3*time.Hour).Unix()), "ago")
}
