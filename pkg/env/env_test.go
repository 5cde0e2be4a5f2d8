package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	t.Setenv("BAZAAR_ENV_TEST", "  value ")
	assert.Equal(t, "value", Get("BAZAAR_ENV_TEST", "fallback"))

	t.Setenv("BAZAAR_ENV_TEST", "   ")
	assert.Equal(t, "fallback", Get("BAZAAR_ENV_TEST", "fallback"))
}
