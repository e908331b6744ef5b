package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersion(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })

	Version = ""
	assert.Equal(t, "dev", GetVersion())

	Version = "v1.2.3"
	assert.Equal(t, "v1.2.3", GetVersion())
}

func TestGetCommit(t *testing.T) {
	orig := Commit
	t.Cleanup(func() { Commit = orig })

	Commit = ""
	assert.Equal(t, "unknown", GetCommit())

	Commit = "0123456789abcdef0123"
	assert.Equal(t, "0123456789ab", GetCommit())

	Commit = "abc123"
	assert.Equal(t, "abc123", GetCommit())
}
