//go:build !sonic

package ordinals

import "github.com/goccy/go-json"

var jsonMarshalIndent = json.MarshalIndent
var jsonUnmarshal = json.Unmarshal
