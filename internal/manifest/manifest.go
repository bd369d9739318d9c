// Package manifest persists what a sync pass did: which paths were offloaded
// to the blob store and which confirmed writes touched which path.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"

	"github.com/natefinch/atomic"
	"github.com/openmined/chunksync/internal/errs"
	"github.com/openmined/chunksync/internal/utils"
)

const DefaultPath = "deploy/manifest.json"

const (
	keyExternalFiles   = "externalFiles"
	keyWriteReceipts   = "writeReceipts"
	keyExternalDigests = "externalDigests"

	// names written by older deploy tooling
	legacyKeyExternal = "ipfsFiles"
	legacyKeyReceipts = "contractFiles"
)

type document struct {
	ExternalFiles   map[string]string `json:"externalFiles"`
	WriteReceipts   map[string]string `json:"writeReceipts"`
	ExternalDigests map[string]string `json:"externalDigests,omitempty"`

	LegacyExternal map[string]string `json:"ipfsFiles,omitempty"`
	LegacyReceipts map[string]string `json:"contractFiles,omitempty"`
}

// Manifest maps paths to blob ids and receipt ids to paths. It is safe for
// concurrent use. Top-level keys it does not know are kept and written back.
type Manifest struct {
	mu        sync.RWMutex
	externals map[string]string
	receipts  map[string]string
	digests   map[string]string
	extra     map[string]any
}

func New() *Manifest {
	return &Manifest{
		externals: make(map[string]string),
		receipts:  make(map[string]string),
		digests:   make(map[string]string),
		extra:     make(map[string]any),
	}
}

// Load reads the manifest at path. A missing or empty file yields an empty
// manifest. An unparsable file yields an empty manifest together with an
// error wrapping errs.ErrManifestCorrupt, so callers can warn and carry on.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest: %w", errs.ErrLocalIO, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return New(), nil
	}

	m, err := Parse(data)
	if err != nil {
		return New(), fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a manifest document.
func Parse(data []byte) (*Manifest, error) {
	var doc document
	if err := jsonUnmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrManifestCorrupt, err)
	}
	var raw map[string]any
	if err := jsonUnmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrManifestCorrupt, err)
	}

	m := New()
	maps.Copy(m.externals, doc.LegacyExternal)
	maps.Copy(m.receipts, doc.LegacyReceipts)
	maps.Copy(m.externals, doc.ExternalFiles)
	maps.Copy(m.receipts, doc.WriteReceipts)
	maps.Copy(m.digests, doc.ExternalDigests)

	for k, v := range raw {
		switch k {
		case keyExternalFiles, keyWriteReceipts, keyExternalDigests, legacyKeyExternal, legacyKeyReceipts:
		default:
			m.extra[k] = v
		}
	}
	return m, nil
}

// Marshal encodes the manifest with sorted keys.
func (m *Manifest) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]any, len(m.extra)+3)
	maps.Copy(out, m.extra)
	out[keyExternalFiles] = m.externals
	out[keyWriteReceipts] = m.receipts
	if len(m.digests) > 0 {
		out[keyExternalDigests] = m.digests
	}

	data, err := jsonMarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Save atomically replaces the file at path.
func (m *Manifest) Save(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := utils.EnsureParent(path); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrLocalIO, err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: write manifest: %w", errs.ErrLocalIO, err)
	}
	return nil
}

// Merge copies every entry of other into m. Entries of other win.
func (m *Manifest) Merge(other *Manifest) {
	if other == nil || other == m {
		return
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	maps.Copy(m.externals, other.externals)
	maps.Copy(m.receipts, other.receipts)
	maps.Copy(m.digests, other.digests)
	for k, v := range other.extra {
		if _, ok := m.extra[k]; !ok {
			m.extra[k] = v
		}
	}
}

func (m *Manifest) ExternalBlob(path string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.externals[path]
	return id, ok
}

func (m *Manifest) ExternalDigest(path string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.digests[path]
	return d, ok
}

// SetExternal records that path lives in the blob store as blobID. An empty
// digest clears any recorded digest.
func (m *Manifest) SetExternal(path, blobID, digest string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.externals[path] = blobID
	if digest == "" {
		delete(m.digests, path)
	} else {
		m.digests[path] = digest
	}
}

func (m *Manifest) AddReceipt(receiptID, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[receiptID] = path
}

// ReceiptsFor lists the receipts recorded for path, sorted.
func (m *Manifest) ReceiptsFor(path string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, p := range m.receipts {
		if p == path {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// RemovePath drops every entry that refers to path.
func (m *Manifest) RemovePath(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.externals, path)
	delete(m.digests, path)
	maps.DeleteFunc(m.receipts, func(_ string, p string) bool {
		return p == path
	})
}

// Externals returns a copy of the path to blob id mapping.
func (m *Manifest) Externals() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.externals)
}

// Receipts returns a copy of the receipt id to path mapping.
func (m *Manifest) Receipts() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.receipts)
}
