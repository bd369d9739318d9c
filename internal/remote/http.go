package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/imroc/req/v3"
	"github.com/openmined/chunksync/internal/errs"
	"github.com/openmined/chunksync/internal/version"
)

const (
	HeaderUserAgent = "User-Agent"
	HeaderVersion   = "X-Chunksync-Version"
	HeaderClientID  = "X-Chunksync-Client"
)

var UserAgent = fmt.Sprintf("chunksync/%s (%s; %s; %s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

// ClientID identifies this machine to the gateway without exposing the raw
// machine id. Empty when the platform has none.
func ClientID() string {
	id, err := machineid.ProtectedID(version.AppName)
	if err != nil {
		return ""
	}
	return id[:16]
}

// HTTPStore talks to a chunk gateway over its JSON API. Retries are left to
// the caller's retry policy so every call is attempted exactly once here.
type HTTPStore struct {
	client *req.Client
}

var _ ChunkStore = (*HTTPStore)(nil)

func NewHTTPStore(baseURL string, token string, timeout time.Duration) (*HTTPStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: remote url missing", errs.ErrInvalidConfiguration)
	}

	client := req.C().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetCommonRetryCount(0).
		SetUserAgent(UserAgent).
		SetCommonHeader(HeaderVersion, version.Version).
		SetCommonHeader(HeaderClientID, ClientID()).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	if token != "" {
		client.SetCommonBearerAuthToken(token)
	}

	return &HTTPStore{client: client}, nil
}

func (h *HTTPStore) ResourceInfo(ctx context.Context, path string) (info *ResourceInfo, err error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParam("path", path).
		SetSuccessResult(&info).
		Get(V1Resources)

	if err := handleAPIError(resp, err, "resource info"); err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("resource info %q: %w: empty response", path, errs.ErrUnavailable)
	}
	return info, nil
}

func (h *HTTPStore) GetChunk(ctx context.Context, path string, index int) (*Chunk, error) {
	var apiResp *ChunkResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParam("path", path).
		SetQueryParam("index", strconv.Itoa(index)).
		SetSuccessResult(&apiResp).
		Get(V1ResourceChunk)

	if err := handleAPIError(resp, err, "get chunk"); err != nil {
		return nil, err
	}
	if apiResp == nil {
		return nil, fmt.Errorf("get chunk %d of %q: %w: empty response", index, path, errs.ErrUnavailable)
	}
	return &Chunk{Bytes: apiResp.Content, ContentType: apiResp.ContentType}, nil
}

func (h *HTTPStore) SetChunk(ctx context.Context, path string, index int, data []byte, contentType string, redirectCode int) (string, error) {
	var apiResp *WriteResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(&SetChunkRequest{
			Path:         path,
			Index:        index,
			Content:      data,
			ContentType:  contentType,
			RedirectCode: redirectCode,
		}).
		SetSuccessResult(&apiResp).
		Put(V1ResourceChunk)

	if err := handleAPIError(resp, err, "set chunk"); err != nil {
		return "", err
	}
	return receiptOf(apiResp, "set chunk")
}

func (h *HTTPStore) AppendChunk(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	var apiResp *WriteResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(&AppendChunkRequest{
			Path:        path,
			Content:     data,
			ContentType: contentType,
		}).
		SetSuccessResult(&apiResp).
		Post(V1ResourceAppend)

	if err := handleAPIError(resp, err, "append chunk"); err != nil {
		return "", err
	}
	return receiptOf(apiResp, "append chunk")
}

func (h *HTTPStore) RemoveResource(ctx context.Context, path string) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParam("path", path).
		Delete(V1Resources)

	err = handleAPIError(resp, err, "remove resource")
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	return err
}

func receiptOf(apiResp *WriteResponse, operation string) (string, error) {
	if apiResp == nil || apiResp.ReceiptID == "" {
		return "", fmt.Errorf("%s: %w: missing receipt", operation, errs.ErrUnavailable)
	}
	return apiResp.ReceiptID, nil
}

// handleAPIError maps a transport error or an error status onto the errs
// taxonomy, keeping the gateway's error body in the message.
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		if errors.Is(requestErr, context.Canceled) {
			return fmt.Errorf("%s: %w", operation, requestErr)
		}
		return fmt.Errorf("%s: %w: %w", operation, errs.ErrUnavailable, requestErr)
	}

	if !resp.IsErrorState() {
		return nil
	}

	sentinel := statusError(resp.StatusCode)
	apiErr := &APIError{}
	if body, err := resp.ToBytes(); err == nil && len(body) > 0 && jsonUnmarshal(body, apiErr) == nil && apiErr.Code != "" {
		return fmt.Errorf("%s: %w: %w", operation, sentinel, apiErr)
	}
	return fmt.Errorf("%s: %w: status %d", operation, sentinel, resp.StatusCode)
}

func statusError(status int) error {
	switch {
	case status == http.StatusNotFound:
		return errs.ErrNotFound
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return errs.ErrUnavailable
	default:
		return errs.ErrRejected
	}
}
