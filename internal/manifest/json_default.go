//go:build !sonic

package manifest

import "github.com/goccy/go-json"

var jsonMarshalIndent = json.MarshalIndent
var jsonUnmarshal = json.Unmarshal
