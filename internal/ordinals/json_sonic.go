//go:build sonic

package ordinals

import "github.com/bytedance/sonic"

// ConfigStd keeps map keys sorted so exported indexes diff cleanly.
var jsonMarshalIndent = sonic.ConfigStd.MarshalIndent
var jsonUnmarshal = sonic.ConfigStd.Unmarshal
