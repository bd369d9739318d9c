package utils

import (
	"path/filepath"
	"strings"
)

const DefaultContentType = "application/octet-stream"

var contentTypes = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".map":  "application/json",
	".xml":  "application/xml",
	".txt":  "text/plain",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".pdf":  "application/pdf",
}

// ContentTypeForExt maps a file extension (with the leading dot) to a content type.
// Unknown extensions resolve to DefaultContentType.
func ContentTypeForExt(ext string) string {
	ext = strings.ToLower(ext)
	if isTextLike(ext) {
		return "text/plain; charset=utf-8"
	}
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return DefaultContentType
}

// DetectContentType resolves the content type of a path by its extension.
func DetectContentType(path string) string {
	return ContentTypeForExt(filepath.Ext(path))
}

func isTextLike(ext string) bool {
	return ext == ".yaml" ||
		ext == ".yml" ||
		ext == ".toml" ||
		ext == ".md"
}
