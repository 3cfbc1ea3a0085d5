package main

import (
	"testing"

	"github.com/PiranhaCodes/ptyhost/internal/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, pty.ID(42), id)

	for _, bad := range []string{"", "0", "-1", "abc", "1.5"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseDim(t *testing.T) {
	n, err := parseDim("rows", "30")
	require.NoError(t, err)
	assert.Equal(t, 30, n)

	_, err = parseDim("cols", "wide")
	assert.ErrorContains(t, err, "invalid cols")
}

func TestExitCodeError(t *testing.T) {
	assert.Equal(t, "session exited with code 3", exitCodeError{code: 3}.Error())
}

func TestShellExit(t *testing.T) {
	assert.NoError(t, shellExit(0))

	var exitErr exitCodeError
	require.ErrorAs(t, shellExit(3), &exitErr)
	assert.Equal(t, 3, exitErr.code)

	// A shell killed by a signal has no exit code and must not look clean.
	require.ErrorAs(t, shellExit(-1), &exitErr)
	assert.Equal(t, signalledExit, exitErr.code)
}
