// Package ordinals exports the build folder as a single JSON index in the
// inscription layout: small text assets inline, everything else linked by
// blob id.
package ordinals

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/natefinch/atomic"
	"github.com/openmined/chunksync/internal/blob"
	"github.com/openmined/chunksync/internal/chunker"
	"github.com/openmined/chunksync/internal/errs"
	"github.com/openmined/chunksync/internal/ignore"
	"github.com/openmined/chunksync/internal/manifest"
	"github.com/openmined/chunksync/internal/router"
	"github.com/openmined/chunksync/internal/syncer"
	"github.com/openmined/chunksync/internal/utils"
)

const (
	DefaultPath       = "deploy/ordinals.json"
	DefaultEntrypoint = "index.html"
	RedirectNone      = "none"
)

type LinkType string

const (
	LinkRaw  LinkType = "raw"
	LinkIPFS LinkType = "ipfs"
)

type Link struct {
	LinkType  LinkType `json:"link_type"`
	LinkValue string   `json:"link_value"`
}

type Index struct {
	RedirectType     string `json:"redirect_type"`
	RedirectValue    string `json:"redirect_value"`
	Entrypoint       string `json:"entrypoint"`
	NextChunk        *Link  `json:"next_chunk,omitempty"`
	PreviousRevision *Link  `json:"previous_revision,omitempty"`
}

// ChunkRef holds either the inline data of a chunk or the blob it links to.
type ChunkRef struct {
	Data      *string `json:"data,omitempty"`
	LinkValue *string `json:"link_value,omitempty"`
}

type File struct {
	ContentType string              `json:"contentType"`
	LinkType    LinkType            `json:"link_type"`
	Chunks      map[string]ChunkRef `json:"chunks"`
}

type Document struct {
	Index Index            `json:"index"`
	Files map[string]*File `json:"files"`
}

func NewDocument(entrypoint string) *Document {
	if entrypoint == "" {
		entrypoint = DefaultEntrypoint
	}
	return &Document{
		Index: Index{
			RedirectType: RedirectNone,
			Entrypoint:   entrypoint,
		},
		Files: make(map[string]*File),
	}
}

func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read ordinals: %w", errs.ErrLocalIO, err)
	}
	doc := NewDocument("")
	if err := jsonUnmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse ordinals %s: %w", path, err)
	}
	if doc.Files == nil {
		doc.Files = make(map[string]*File)
	}
	return doc, nil
}

// Save atomically replaces the file at path.
func (d *Document) Save(path string) error {
	data, err := jsonMarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ordinals: %w", err)
	}
	if err := utils.EnsureParent(path); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrLocalIO, err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(append(data, '\n'))); err != nil {
		return fmt.Errorf("%w: write ordinals: %w", errs.ErrLocalIO, err)
	}
	return nil
}

// Builder walks a build folder into a Document.
type Builder struct {
	Router *router.Router
	Blobs  blob.Store
	// Chunker splits inline files; nil keeps every file in chunk "0".
	Chunker *chunker.Chunker
	Ignore  *ignore.Matcher
	// Manifest, when set, supplies blob ids of files uploaded by earlier
	// passes and records new ones.
	Manifest   *manifest.Manifest
	Entrypoint string
}

// Build indexes every non-ignored file under root. The first failing file
// aborts the build.
func (b *Builder) Build(ctx context.Context, root string) (*Document, error) {
	if b.Router == nil || b.Blobs == nil {
		return nil, fmt.Errorf("%w: ordinals builder needs a router and a blob store", errs.ErrInvalidConfiguration)
	}

	doc := NewDocument(b.Entrypoint)
	for asset, err := range syncer.Walk(root, b.Ignore) {
		if err != nil {
			return nil, err
		}
		if asset.Ignored {
			slog.Debug("ordinals skip", "path", asset.RelativePath)
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		file, err := b.file(ctx, asset)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", asset.RelativePath, err)
		}
		doc.Files[utils.MatchPath(asset.RelativePath)] = file
		slog.Debug("ordinals entry", "path", asset.RelativePath, "link", file.LinkType)
	}
	return doc, nil
}

func (b *Builder) file(ctx context.Context, asset *syncer.LocalAsset) (*File, error) {
	data, err := asset.Read()
	if err != nil {
		return nil, err
	}

	decision := b.Router.Route(router.Asset{
		RelativePath: asset.RelativePath,
		Extension:    asset.Extension,
		Size:         int64(len(data)),
	})

	if !decision.IsExternal() {
		file := &File{ContentType: decision.ContentType, LinkType: LinkRaw, Chunks: make(map[string]ChunkRef)}
		if b.Chunker == nil {
			s := string(data)
			file.Chunks["0"] = ChunkRef{Data: &s}
			return file, nil
		}
		for _, c := range b.Chunker.Split(data, decision.ContentType) {
			s := string(c.Bytes)
			file.Chunks[fmt.Sprint(c.Index)] = ChunkRef{Data: &s}
		}
		return file, nil
	}

	id, err := b.blobID(ctx, asset.RelativePath, data)
	if err != nil {
		return nil, err
	}
	return &File{
		ContentType: decision.ContentType,
		LinkType:    LinkIPFS,
		Chunks:      map[string]ChunkRef{"0": {LinkValue: &id}},
	}, nil
}

func (b *Builder) blobID(ctx context.Context, relPath string, data []byte) (string, error) {
	if b.Manifest != nil {
		if id, ok := b.Manifest.ExternalBlob(relPath); ok {
			return id, nil
		}
	}
	id, err := b.Blobs.Upload(ctx, relPath, data)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if b.Manifest != nil {
		b.Manifest.SetExternal(relPath, id, "")
	}
	return id, nil
}
