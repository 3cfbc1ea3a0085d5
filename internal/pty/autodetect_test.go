package pty

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectShellPrefersEnv(t *testing.T) {
	if !isExecutable("/bin/sh") {
		t.Skip("no /bin/sh")
	}
	t.Setenv("SHELL", "/bin/sh")

	shell, err := DetectShell()
	require.NoError(t, err)
	assert.Equal(t, "/bin/sh", shell)
}

func TestDetectShellIgnoresBogusEnv(t *testing.T) {
	t.Setenv("SHELL", "/definitely/not/a/shell")

	shell, err := DetectShell()
	if err != nil {
		t.Skipf("no fallback shell on this host: %v", err)
	}
	assert.Contains(t, shellCandidates, shell)
}

func TestResolveShell(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "myshell")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"), 0755))
	plain := filepath.Join(dir, "notexec")
	require.NoError(t, os.WriteFile(plain, []byte("data"), 0644))

	got, err := ResolveShell(script)
	require.NoError(t, err)
	assert.Equal(t, script, got)

	_, err = ResolveShell(plain)
	assert.Error(t, err)

	_, err = ResolveShell(dir)
	assert.Error(t, err, "directories are not shells")

	t.Setenv("PATH", dir)
	got, err = ResolveShell("myshell")
	require.NoError(t, err)
	assert.Equal(t, script, got)

	_, err = ResolveShell("missing-shell")
	assert.Error(t, err)
}
