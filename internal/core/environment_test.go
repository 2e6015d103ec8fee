package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEnvironment(t *testing.T) {
	cases := map[string]Environment{
		"production":    Production,
		" Production ":  Production,
		"prod":          Production,
		"staging":       Staging,
		"TEST":          Testing,
		"testing":       Testing,
		"":              Development,
		"something-odd": Development,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseEnvironment(in), "input %q", in)
	}
}

func TestEnvironmentDecode(t *testing.T) {
	var env Environment
	assert.NoError(t, env.Decode("production"))
	assert.True(t, env.IsProduction())
	assert.Equal(t, "production", env.String())
}
