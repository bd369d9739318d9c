//go:build sonic

package manifest

import "github.com/bytedance/sonic"

// ConfigStd keeps map keys sorted so saved manifests diff cleanly.
var jsonMarshalIndent = sonic.ConfigStd.MarshalIndent
var jsonUnmarshal = sonic.ConfigStd.Unmarshal
