// Package blob offloads assets that do not belong in the chunk store to an
// external content-addressed store.
package blob

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// Backends accepted by configuration.
const (
	BackendMemory = "memory"
	BackendS3     = "s3"
	BackendPinata = "pinata"
)

// CIDPlaceholder is replaced by the blob id in URL templates.
const CIDPlaceholder = "{cid}"

// Store uploads content and returns a stable identifier for it. name is the
// asset's relative path and only serves as metadata.
type Store interface {
	Upload(ctx context.Context, name string, data []byte) (blobID string, err error)
}

// Digest is the hex BLAKE3-256 of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// URL renders a blob id into template. A template without the placeholder
// gets the id appended.
func URL(template string, blobID string) string {
	if template == "" {
		return blobID
	}
	if !strings.Contains(template, CIDPlaceholder) {
		return strings.TrimRight(template, "/") + "/" + blobID
	}
	return strings.ReplaceAll(template, CIDPlaceholder, blobID)
}
