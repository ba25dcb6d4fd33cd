package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "nested", "out.json")

	require.NoError(t, WriteAtomic(p, []byte(`[1]`)))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(b))

	require.NoError(t, WriteAtomic(p, []byte(`[2]`)))
	b, err = os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, `[2]`, string(b))

	entries, err := os.ReadDir(filepath.Dir(p))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files left behind")
}

func TestWriteAtomicErrors(t *testing.T) {
	assert.Error(t, WriteAtomic("", []byte("x")))

	dir := t.TempDir()
	target := filepath.Join(dir, "taken")
	require.NoError(t, os.Mkdir(target, DirMode))
	require.NoError(t, os.WriteFile(filepath.Join(target, "keep"), []byte("x"), FileMode))
	assert.Error(t, WriteAtomic(target, []byte("x")))
}
