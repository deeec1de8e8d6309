package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Abbey Road", Truncate("Abbey Road", 0))
	assert.Equal(t, "Abbey Road", Truncate("Abbey Road", 10))
	assert.Equal(t, "Abbe…", Truncate("Abbey Road", 5))
	assert.Equal(t, "Sigur R…", Truncate("Sigur Rós - Ágætis byrjun", 8))
	assert.Equal(t, "…", Truncate("Abbey Road", 1))
}
