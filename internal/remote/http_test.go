package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openmined/chunksync/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	body, err := jsonMarshal(v)
	require.NoError(t, err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func newTestHTTPStore(t *testing.T, handler http.HandlerFunc) *HTTPStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := NewHTTPStore(srv.URL, "secret", 5*time.Second)
	require.NoError(t, err)
	return store
}

func TestNewHTTPStore_RequiresURL(t *testing.T) {
	_, err := NewHTTPStore("", "", 0)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
}

func TestHTTPStore_ResourceInfo(t *testing.T) {
	store := newTestHTTPStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, V1Resources, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get(HeaderVersion))

		if r.URL.Query().Get("path") != "/a.txt" {
			writeJSON(t, w, http.StatusNotFound, APIError{Code: CodeResourceNotFound, Message: "no such resource"})
			return
		}
		writeJSON(t, w, http.StatusOK, ResourceInfo{TotalChunks: 3, ContentType: "text/plain", RedirectCode: 0})
	})

	info, err := store.ResourceInfo(context.Background(), "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, 3, info.TotalChunks)
	assert.Equal(t, "text/plain", info.ContentType)

	_, err = store.ResourceInfo(context.Background(), "/nope.txt")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Contains(t, err.Error(), CodeResourceNotFound)
}

func TestHTTPStore_GetChunk(t *testing.T) {
	store := newTestHTTPStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, V1ResourceChunk, r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("index"))
		writeJSON(t, w, http.StatusOK, ChunkResponse{Content: []byte{0x00, 0xff, 0x10}, ContentType: "image/png"})
	})

	c, err := store.GetChunk(context.Background(), "/img.png", 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff, 0x10}, c.Bytes)
	assert.Equal(t, "image/png", c.ContentType)
}

func TestHTTPStore_SetChunk(t *testing.T) {
	var got SetChunkRequest
	store := newTestHTTPStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, jsonUnmarshal(body, &got))
		writeJSON(t, w, http.StatusOK, WriteResponse{ReceiptID: "0xabc"})
	})

	receipt, err := store.SetChunk(context.Background(), "/a.txt", 2, []byte("data"), "text/plain", 301)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", receipt)
	assert.Equal(t, SetChunkRequest{Path: "/a.txt", Index: 2, Content: []byte("data"), ContentType: "text/plain", RedirectCode: 301}, got)
}

func TestHTTPStore_AppendChunk(t *testing.T) {
	var got AppendChunkRequest
	store := newTestHTTPStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, V1ResourceAppend, r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, jsonUnmarshal(body, &got))
		writeJSON(t, w, http.StatusOK, WriteResponse{ReceiptID: "0xdef"})
	})

	receipt, err := store.AppendChunk(context.Background(), "/a.txt", []byte("tail"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "0xdef", receipt)
	assert.Equal(t, []byte("tail"), got.Content)
}

func TestHTTPStore_MissingReceipt(t *testing.T) {
	store := newTestHTTPStore(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, WriteResponse{})
	})

	_, err := store.AppendChunk(context.Background(), "/a.txt", []byte("x"), "text/plain")
	assert.ErrorIs(t, err, errs.ErrUnavailable)
}

func TestHTTPStore_RemoveResourceIdempotent(t *testing.T) {
	store := newTestHTTPStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		writeJSON(t, w, http.StatusNotFound, APIError{Code: CodeResourceNotFound, Message: "gone"})
	})

	assert.NoError(t, store.RemoveResource(context.Background(), "/a.txt"))
}

func TestHTTPStore_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, errs.ErrRejected},
		{http.StatusConflict, errs.ErrRejected},
		{http.StatusUnprocessableEntity, errs.ErrRejected},
		{http.StatusForbidden, errs.ErrRejected},
		{http.StatusNotFound, errs.ErrNotFound},
		{http.StatusTooManyRequests, errs.ErrUnavailable},
		{http.StatusInternalServerError, errs.ErrUnavailable},
		{http.StatusBadGateway, errs.ErrUnavailable},
	}

	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			store := newTestHTTPStore(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})
			_, err := store.SetChunk(context.Background(), "/a.txt", 0, []byte("x"), "text/plain", RedirectNone)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestHTTPStore_TransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	store, err := NewHTTPStore(url, "", time.Second)
	require.NoError(t, err)

	_, err = store.ResourceInfo(context.Background(), "/a.txt")
	assert.ErrorIs(t, err, errs.ErrUnavailable)
	assert.True(t, errs.IsRetryable(err))
}
