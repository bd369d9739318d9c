package blob

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/openmined/chunksync/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 answers HEAD and PUT for path-style object keys.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/bucket/")
	switch r.Method {
	case http.MethodHead:
		if _, ok := f.objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.puts++
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3Config_Validate(t *testing.T) {
	assert.ErrorIs(t, (&S3Config{Region: "us-east-1"}).Validate(), errs.ErrInvalidConfiguration)
	assert.ErrorIs(t, (&S3Config{Bucket: "b"}).Validate(), errs.ErrInvalidConfiguration)
	assert.NoError(t, (&S3Config{Bucket: "b", Region: "us-east-1"}).Validate())
}

func TestS3Store_UploadDedupes(t *testing.T) {
	fake := &fakeS3{objects: make(map[string][]byte)}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	store, err := NewS3Store(context.Background(), &S3Config{
		Bucket:    "bucket",
		Region:    "us-east-1",
		AccessKey: "access",
		SecretKey: "secret",
		Endpoint:  srv.URL,
	})
	require.NoError(t, err)

	id, err := store.Upload(context.Background(), "/img.png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, Digest([]byte("png-bytes")), id)

	again, err := store.Upload(context.Background(), "/copy.png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, id, again)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.puts)
	assert.Contains(t, fake.objects, "blobs/"+id)
}
