package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetIDPrefersEnv(t *testing.T) {
	t.Setenv("SAGA_INSTANCE_ID", "coordinator-7")
	assert.Equal(t, "coordinator-7", GetID())
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv("SAGA_INSTANCE_ID", "")
	assert.NotEmpty(t, GetID())
}
