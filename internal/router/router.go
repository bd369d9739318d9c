// Package router decides whether a local asset is stored inline in the chunk
// store or offloaded to the external blob store.
package router

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/chunksync/internal/errs"
)

// Destination is where an asset's content lives.
type Destination string

const (
	Inline   Destination = "inline"
	External Destination = "external"
)

// Mode selects which of the two policy shapes is active.
type Mode string

const (
	// ModeExternalList routes an asset External when its extension is listed
	// in ExternalExtensions or it exceeds the size threshold.
	ModeExternalList Mode = "external-list"

	// ModeInlineAllowList routes an asset External unless its extension is in
	// InlineExtensions, and always when it exceeds the size threshold.
	ModeInlineAllowList Mode = "inline-allowlist"
)

// DefaultSizeThreshold is the size above which assets are offloaded.
const DefaultSizeThreshold = 5 * 1024 * 1024

// DefaultInlineExtensions are the text assets kept in the chunk store.
var DefaultInlineExtensions = []string{".html", ".htm", ".css", ".js", ".xml", ".txt"}

type Policy struct {
	Mode               Mode
	InlineExtensions   mapset.Set[string]
	ExternalExtensions mapset.Set[string]
	// ExternalIfLargerThan routes assets strictly larger than this External.
	// Zero disables the size rule.
	ExternalIfLargerThan int64
}

// DefaultPolicy mirrors the allow-list shape with a 5 MiB threshold.
func DefaultPolicy() Policy {
	return Policy{
		Mode:                 ModeInlineAllowList,
		InlineExtensions:     NewExtensionSet(DefaultInlineExtensions...),
		ExternalExtensions:   mapset.NewThreadUnsafeSet[string](),
		ExternalIfLargerThan: DefaultSizeThreshold,
	}
}

// NewExtensionSet normalizes extensions to lower case with a leading dot.
func NewExtensionSet(exts ...string) mapset.Set[string] {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, ext := range exts {
		if ext = NormExt(ext); ext != "" {
			set.Add(ext)
		}
	}
	return set
}

func NormExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func (p Policy) Validate() error {
	switch p.Mode {
	case ModeExternalList, ModeInlineAllowList:
	default:
		return fmt.Errorf("%w: unknown routing mode %q", errs.ErrInvalidConfiguration, p.Mode)
	}
	if p.ExternalIfLargerThan < 0 {
		return fmt.Errorf("%w: size threshold must be >= 0, got %d", errs.ErrInvalidConfiguration, p.ExternalIfLargerThan)
	}
	return nil
}

// Asset is the routing-relevant view of a local file.
type Asset struct {
	RelativePath string
	Extension    string
	Size         int64
}

type Decision struct {
	RelativePath string
	Destination  Destination
	ContentType  string
}

func (d Decision) IsExternal() bool {
	return d.Destination == External
}

// ContentTypeFunc resolves an extension to a content type.
type ContentTypeFunc func(ext string) string

type Router struct {
	policy      Policy
	contentType ContentTypeFunc
}

func New(policy Policy, contentType ContentTypeFunc) (*Router, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if contentType == nil {
		return nil, fmt.Errorf("%w: content type resolver is required", errs.ErrInvalidConfiguration)
	}
	if policy.InlineExtensions == nil {
		policy.InlineExtensions = mapset.NewThreadUnsafeSet[string]()
	}
	if policy.ExternalExtensions == nil {
		policy.ExternalExtensions = mapset.NewThreadUnsafeSet[string]()
	}
	return &Router{policy: policy, contentType: contentType}, nil
}

func (r *Router) Policy() Policy {
	return r.policy
}

// Route classifies an asset. The outcome depends only on size, extension and
// the policy, so identical inputs always route identically.
func (r *Router) Route(asset Asset) Decision {
	ext := NormExt(asset.Extension)
	return Decision{
		RelativePath: asset.RelativePath,
		Destination:  r.destination(ext, asset.Size),
		ContentType:  r.contentType(ext),
	}
}

func (r *Router) destination(ext string, size int64) Destination {
	if r.policy.ExternalIfLargerThan > 0 && size > r.policy.ExternalIfLargerThan {
		return External
	}

	switch r.policy.Mode {
	case ModeInlineAllowList:
		if !r.policy.InlineExtensions.Contains(ext) {
			return External
		}
	case ModeExternalList:
		if r.policy.ExternalExtensions.Contains(ext) {
			return External
		}
	}
	return Inline
}
