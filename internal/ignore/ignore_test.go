package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Defaults(t *testing.T) {
	m := New()

	assert.True(t, m.ShouldIgnore("/.DS_Store"))
	assert.True(t, m.ShouldIgnore("assets/.DS_Store"))
	assert.True(t, m.ShouldIgnore("/cache/build.tmp"))
	assert.True(t, m.ShouldIgnoreDir("/.git"))
	assert.False(t, m.ShouldIgnore("/index.html"))
	assert.False(t, m.ShouldIgnore("/"))
	assert.Equal(t, 0, m.Rules())
}

func TestMatcher_GitignoreSemantics(t *testing.T) {
	m := New(
		"# source maps are not deployed",
		"*.map",
		"!keep.map",
		"drafts/",
		"/secret.txt",
		"**/fixtures/**",
	)

	assert.True(t, m.ShouldIgnore("/assets/app.js.map"))
	assert.False(t, m.ShouldIgnore("/assets/keep.map"), "negation re-includes")
	assert.True(t, m.ShouldIgnore("/drafts/post.html"), "directory pattern")
	assert.True(t, m.ShouldIgnoreDir("/drafts"))
	assert.True(t, m.ShouldIgnore("/secret.txt"))
	assert.True(t, m.ShouldIgnore("/a/b/fixtures/x.json"))
	assert.False(t, m.ShouldIgnore("/# source maps are not deployed"))
	assert.False(t, m.ShouldIgnore("/assets/app.js"))
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultIgnoreFile)
	content := []byte("# comment\r\n\r\n*.log\r\nprivate/**\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Rules())
	assert.True(t, m.ShouldIgnore("/debug.log"))
	assert.True(t, m.ShouldIgnore("/private/key.txt"))
	assert.False(t, m.ShouldIgnore("/public/key.txt"))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Rules())
	assert.True(t, m.ShouldIgnore("/.DS_Store"))
}
