package remote

import "fmt"

// gateway routes
const (
	V1Resources      = "/api/v1/resources"
	V1ResourceChunk  = "/api/v1/resources/chunk"
	V1ResourceAppend = "/api/v1/resources/append"
)

const (
	CodeInvalidRequest   = "E_INVALID_REQUEST"
	CodeResourceNotFound = "E_RESOURCE_NOT_FOUND"
	CodeChunkTooLarge    = "E_CHUNK_TOO_LARGE"
	CodeChunkOutOfBounds = "E_CHUNK_OUT_OF_BOUNDS"
	CodeInternalError    = "E_INTERNAL_ERROR"
	CodeAccessDenied     = "E_ACCESS_DENIED"
	CodeRateLimited      = "E_RATE_LIMITED"
	CodeStoreUnavailable = "E_STORE_UNAVAILABLE"
	CodeUnknownError     = "E_UNKNOWN_ERR"
)

// APIError is the error body returned by the chunk gateway.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

type ChunkResponse struct {
	Content     []byte `json:"content"`
	ContentType string `json:"contentType"`
}

type SetChunkRequest struct {
	Path         string `json:"path" binding:"required"`
	Index        int    `json:"index"`
	Content      []byte `json:"content"`
	ContentType  string `json:"contentType"`
	RedirectCode int    `json:"redirectCode"`
}

type AppendChunkRequest struct {
	Path        string `json:"path" binding:"required"`
	Content     []byte `json:"content"`
	ContentType string `json:"contentType"`
}

type WriteResponse struct {
	ReceiptID string `json:"receiptId"`
}
