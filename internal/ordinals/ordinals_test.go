package ordinals

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/chunksync/internal/blob"
	"github.com/openmined/chunksync/internal/chunker"
	"github.com/openmined/chunksync/internal/errs"
	"github.com/openmined/chunksync/internal/ignore"
	"github.com/openmined/chunksync/internal/manifest"
	"github.com/openmined/chunksync/internal/router"
	"github.com/openmined/chunksync/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range map[string]string{
		"index.html":     "<h1>hi</h1>",
		"css/site.css":   "body{}",
		"img/logo.png":   "png-bytes",
		"app.js.map":     "{}",
		"empty.txt":      "",
		"docs/notes.tmp": "scratch",
	} {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	return root
}

func newBuilder(t *testing.T, blobs blob.Store) *Builder {
	t.Helper()
	r, err := router.New(router.DefaultPolicy(), utils.ContentTypeForExt)
	require.NoError(t, err)
	return &Builder{
		Router: r,
		Blobs:  blobs,
		Ignore: ignore.New("*.map"),
	}
}

func TestBuild(t *testing.T) {
	root := buildTree(t)
	blobs := blob.NewMemoryStore()

	doc, err := newBuilder(t, blobs).Build(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, RedirectNone, doc.Index.RedirectType)
	assert.Equal(t, "", doc.Index.RedirectValue)
	assert.Equal(t, DefaultEntrypoint, doc.Index.Entrypoint)
	assert.Len(t, doc.Files, 4)
	assert.NotContains(t, doc.Files, "app.js.map")
	assert.NotContains(t, doc.Files, "docs/notes.tmp")

	html := doc.Files["index.html"]
	require.NotNil(t, html)
	assert.Equal(t, LinkRaw, html.LinkType)
	assert.Equal(t, "text/html", html.ContentType)
	require.NotNil(t, html.Chunks["0"].Data)
	assert.Equal(t, "<h1>hi</h1>", *html.Chunks["0"].Data)
	assert.Nil(t, html.Chunks["0"].LinkValue)

	png := doc.Files["img/logo.png"]
	require.NotNil(t, png)
	assert.Equal(t, LinkIPFS, png.LinkType)
	require.NotNil(t, png.Chunks["0"].LinkValue)
	assert.Equal(t, blob.Digest([]byte("png-bytes")), *png.Chunks["0"].LinkValue)
	assert.Equal(t, 1, blobs.Uploads("/img/logo.png"))

	empty := doc.Files["empty.txt"]
	require.NotNil(t, empty.Chunks["0"].Data)
	assert.Equal(t, "", *empty.Chunks["0"].Data)
}

func TestBuildChunked(t *testing.T) {
	root := buildTree(t)
	b := newBuilder(t, blob.NewMemoryStore())
	c, err := chunker.New(4)
	require.NoError(t, err)
	b.Chunker = c

	doc, err := b.Build(context.Background(), root)
	require.NoError(t, err)

	chunks := doc.Files["index.html"].Chunks
	require.Len(t, chunks, 3)
	assert.Equal(t, "<h1>", *chunks["0"].Data)
	assert.Equal(t, "hi</", *chunks["1"].Data)
	assert.Equal(t, "h1>", *chunks["2"].Data)
}

func TestBuildReusesManifestBlobs(t *testing.T) {
	root := buildTree(t)
	blobs := blob.NewMemoryStore()
	m := manifest.New()
	m.SetExternal("/img/logo.png", "bafy-known", "")

	b := newBuilder(t, blobs)
	b.Manifest = m
	doc, err := b.Build(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, "bafy-known", *doc.Files["img/logo.png"].Chunks["0"].LinkValue)
	assert.Zero(t, blobs.TotalUploads())
}

func TestBuildRecordsNewBlobs(t *testing.T) {
	root := buildTree(t)
	m := manifest.New()
	b := newBuilder(t, blob.NewMemoryStore())
	b.Manifest = m

	_, err := b.Build(context.Background(), root)
	require.NoError(t, err)

	id, ok := m.ExternalBlob("/img/logo.png")
	assert.True(t, ok)
	assert.Equal(t, blob.Digest([]byte("png-bytes")), id)
}

func TestBuildUploadFailure(t *testing.T) {
	root := buildTree(t)
	blobs := blob.NewMemoryStore()
	blobs.FailWith(func(string) error { return errs.ErrUnavailable })

	_, err := newBuilder(t, blobs).Build(context.Background(), root)
	assert.ErrorIs(t, err, errs.ErrUnavailable)
	assert.Contains(t, err.Error(), "/img/logo.png")
}

func TestBuildValidation(t *testing.T) {
	_, err := (&Builder{}).Build(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)

	b := newBuilder(t, blob.NewMemoryStore())
	_, err = b.Build(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
}

func TestSaveLoad(t *testing.T) {
	root := buildTree(t)
	doc, err := newBuilder(t, blob.NewMemoryStore()).Build(context.Background(), root)
	require.NoError(t, err)
	doc.Index.PreviousRevision = &Link{LinkType: LinkIPFS, LinkValue: "bafy-prev"}

	path := filepath.Join(t.TempDir(), "deploy", "ordinals.json")
	require.NoError(t, doc.Save(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"redirect_type": "none"`)
	assert.Contains(t, string(raw), `"link_type": "raw"`)
	assert.NotContains(t, string(raw), "next_chunk")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, doc, loaded)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.Is(err, errs.ErrLocalIO))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
}
