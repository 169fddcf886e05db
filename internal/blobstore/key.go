package blobstore

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// KeyPrefix is the namespace all report images are stored under.
const KeyPrefix = "reports/"

var extensionsByMediaType = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
}

// NewKey returns a storage key unique across submissions: reports/<unix>_<uuid>.<ext>.
func NewKey(now time.Time, filename, mediaType string) string {
	return fmt.Sprintf("%s%d_%s.%s", KeyPrefix, now.Unix(), uuid.NewString(), keyExtension(filename, mediaType))
}

func keyExtension(filename, mediaType string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(strings.TrimSpace(filename)), "."))
	if ext != "" && isSafeExtension(ext) {
		return ext
	}
	if ext, ok := extensionsByMediaType[strings.ToLower(strings.TrimSpace(mediaType))]; ok {
		return ext
	}
	return "bin"
}

func isSafeExtension(ext string) bool {
	if len(ext) > 8 {
		return false
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// MediaTypeForKey maps a key's extension back to an image media type.
func MediaTypeForKey(key string) string {
	ext := strings.ToLower(key[strings.LastIndex(key, ".")+1:])
	for mediaType, candidate := range extensionsByMediaType {
		if candidate == ext {
			return mediaType
		}
	}
	if ext == "jpeg" {
		return "image/jpeg"
	}
	return "application/octet-stream"
}

// ValidateKey rejects keys that are empty, absolute, or escape the store root.
func ValidateKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("blob key is required")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("blob key must be relative")
	}
	clean := path.Clean(key)
	if clean != key || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("invalid blob key")
	}
	return nil
}
