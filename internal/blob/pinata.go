package blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/chunksync/internal/errs"
	"github.com/openmined/chunksync/internal/version"
)

const (
	DefaultPinataEndpoint = "https://api.pinata.cloud"
	v1PinFile             = "/pinning/pinFileToIPFS"

	headerPinataKey    = "pinata_api_key"
	headerPinataSecret = "pinata_secret_api_key"
)

type PinataConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Endpoint  string `mapstructure:"endpoint"`
}

func (c *PinataConfig) Validate() error {
	if c.APIKey == "" || c.APISecret == "" {
		return fmt.Errorf("%w: pinata api key and secret are required", errs.ErrInvalidConfiguration)
	}
	return nil
}

type pinResponse struct {
	IpfsHash    string `json:"IpfsHash"`
	PinSize     int64  `json:"PinSize"`
	Timestamp   string `json:"Timestamp"`
	IsDuplicate bool   `json:"isDuplicate"`
}

type pinMetadata struct {
	Name      string            `json:"name"`
	KeyValues map[string]string `json:"keyvalues,omitempty"`
}

// PinataStore pins blobs to IPFS through the Pinata API. The blob id is the
// returned CID.
type PinataStore struct {
	client *req.Client
}

var _ Store = (*PinataStore)(nil)

func NewPinataStore(cfg *PinataConfig, timeout time.Duration) (*PinataStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultPinataEndpoint
	}

	client := req.C().
		SetBaseURL(strings.TrimRight(endpoint, "/")).
		SetCommonRetryCount(0).
		SetUserAgent(version.AppName+"/"+version.Version).
		SetCommonHeader(headerPinataKey, cfg.APIKey).
		SetCommonHeader(headerPinataSecret, cfg.APISecret).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	return &PinataStore{client: client}, nil
}

func (p *PinataStore) Upload(ctx context.Context, name string, data []byte) (string, error) {
	meta, err := jsonMarshal(&pinMetadata{
		Name:      path.Base(name),
		KeyValues: map[string]string{"path": name},
	})
	if err != nil {
		return "", fmt.Errorf("pinata metadata: %w", err)
	}

	var apiResp *pinResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetFileBytes("file", path.Base(name), data).
		SetFormData(map[string]string{"pinataMetadata": string(meta)}).
		SetSuccessResult(&apiResp).
		Post(v1PinFile)

	if err := handleAPIError(resp, err, "pinata pin"); err != nil {
		return "", err
	}
	if apiResp == nil || apiResp.IpfsHash == "" {
		return "", fmt.Errorf("pinata pin %q: %w: missing cid", name, errs.ErrUnavailable)
	}

	return apiResp.IpfsHash, nil
}

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

	body, _ := resp.ToString()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s: %w: status %d %s", operation, errs.ErrUnavailable, resp.StatusCode, body)
	}
	return fmt.Errorf("%s: %w: status %d %s", operation, errs.ErrRejected, resp.StatusCode, body)
}
