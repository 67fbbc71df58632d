package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashCode(t *testing.T) {
	a := HashCode([]byte("page payload"))
	b := HashCode([]byte("page payload"))
	assert.Equal(t, a, b, "stable for equal input")

	c := HashCode([]byte("page payloae"))
	assert.NotEqual(t, a, c, "sensitive to a single byte")

	assert.NotZero(t, HashCode(nil))
}
