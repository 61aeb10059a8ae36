package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("TARSY_SUBSTRATE_HOST", "db.internal")
	t.Setenv("TARSY_SUBSTRATE_PORT", "5432")

	got := ExpandEnv([]byte("host: ${TARSY_SUBSTRATE_HOST}\nport: $TARSY_SUBSTRATE_PORT\n"))
	assert.Equal(t, "host: db.internal\nport: 5432\n", string(got))
}

func TestExpandEnv_MissingVariableExpandsToEmpty(t *testing.T) {
	got := ExpandEnv([]byte("token: ${DOES_NOT_EXIST}"))
	assert.Equal(t, "token: ", string(got))
}
