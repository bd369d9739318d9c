package syncer

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/chunksync/internal/errs"
	"github.com/openmined/chunksync/internal/utils"
)

// StaleTailPolicy says what to do with remote chunks past the end of a file
// that shrank.
type StaleTailPolicy string

const (
	// StaleTailLeave keeps the tail and reports it in the result.
	StaleTailLeave StaleTailPolicy = "leave"
	// StaleTailTruncate removes the resource and rewrites it from chunk 0.
	StaleTailTruncate StaleTailPolicy = "truncate"
	// StaleTailError fails the file before any write.
	StaleTailError StaleTailPolicy = "error"
)

func ParseStaleTailPolicy(s string) (StaleTailPolicy, error) {
	switch p := StaleTailPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return StaleTailLeave, nil
	case StaleTailLeave, StaleTailTruncate, StaleTailError:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown stale tail policy %q", errs.ErrInvalidConfiguration, s)
	}
}

// BlobIdempotence selects how an already offloaded asset is recognised.
type BlobIdempotence string

const (
	// BlobByPresence skips the upload whenever the manifest has a blob id
	// for the path, even if the content changed.
	BlobByPresence BlobIdempotence = "presence"
	// BlobByDigest re-uploads when the content digest differs from the one
	// recorded at the last upload.
	BlobByDigest BlobIdempotence = "digest"
)

func ParseBlobIdempotence(s string) (BlobIdempotence, error) {
	switch b := BlobIdempotence(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BlobByPresence, nil
	case BlobByPresence, BlobByDigest:
		return b, nil
	default:
		return "", fmt.Errorf("%w: unknown blob idempotence %q", errs.ErrInvalidConfiguration, s)
	}
}

// DefaultRedirectCode is stored with redirect resources.
const DefaultRedirectCode = 302

type Options struct {
	// BuildFolder is the root of the local tree.
	BuildFolder string
	// ManifestPath is where the manifest is saved and locked. Empty keeps
	// the manifest in memory only.
	ManifestPath string
	// Workers bounds how many files are synced at once.
	Workers             int
	StaleTail           StaleTailPolicy
	BlobIdempotence     BlobIdempotence
	WriteRedirects      bool
	RedirectCode        int
	BlobURLTemplate     string
	IncrementalManifest bool
	// Include restricts a pass to paths matching one of these globs.
	Include []string
	// DryRun computes plans without writing anything.
	DryRun bool
}

func (o *Options) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.StaleTail == "" {
		o.StaleTail = StaleTailLeave
	}
	if o.BlobIdempotence == "" {
		o.BlobIdempotence = BlobByPresence
	}
	if o.RedirectCode == 0 {
		o.RedirectCode = DefaultRedirectCode
	}
}

func (o *Options) Validate() error {
	if o.BuildFolder == "" {
		return fmt.Errorf("%w: build folder missing", errs.ErrInvalidConfiguration)
	}
	if _, err := ParseStaleTailPolicy(string(o.StaleTail)); err != nil {
		return err
	}
	if _, err := ParseBlobIdempotence(string(o.BlobIdempotence)); err != nil {
		return err
	}
	if o.WriteRedirects && o.BlobURLTemplate == "" {
		return fmt.Errorf("%w: write redirects needs a blob url template", errs.ErrInvalidConfiguration)
	}
	for _, pattern := range o.Include {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("%w: bad include pattern %q", errs.ErrInvalidConfiguration, pattern)
		}
	}
	return nil
}

// included reports whether a normalized path passes the include globs.
func (o *Options) included(relPath string) bool {
	if len(o.Include) == 0 {
		return true
	}
	p := utils.MatchPath(relPath)
	for _, pattern := range o.Include {
		if ok, _ := doublestar.Match(utils.MatchPath(pattern), p); ok {
			return true
		}
	}
	return false
}
