package util

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// MaxImageSize is the largest object the media layer accepts.
const MaxImageSize = 10 * 1024 * 1024 // 10MB

// DetectContentType detects the MIME type of the given data
func DetectContentType(data []byte) string {
	return http.DetectContentType(data)
}

// NormalizeMIME lowercases a content type and drops any parameters.
func NormalizeMIME(contentType string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// IsImageMIME checks if the MIME type is one the portfolio accepts
func IsImageMIME(contentType string) bool {
	switch NormalizeMIME(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/webp", "image/gif":
		return true
	default:
		return false
	}
}

// GetImageExtension returns the file extension (without dot) for a given MIME type
func GetImageExtension(contentType string) string {
	switch NormalizeMIME(contentType) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "jpg"
	}
}

// ExtensionFromFilename returns the lowercase image extension of name, or ""
// when name has no extension we store.
func ExtensionFromFilename(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	switch ext {
	case "jpg", "png", "webp", "gif":
		return ext
	case "jpeg":
		return "jpg"
	default:
		return ""
	}
}

// GetMIMEFromExtension returns the MIME type for a file extension
func GetMIMEFromExtension(ext string) string {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return mime.TypeByExtension(ext)
}
