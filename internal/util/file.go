package util

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

// ValidateMimeType sniffs the first 512 bytes of reader and checks them
// against allowedTypes, which may be prefixes such as "audio/".
func ValidateMimeType(reader io.Reader, allowedTypes []string) (string, error) {
	buffer := make([]byte, 512)
	n, err := reader.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}

	mimeType := http.DetectContentType(buffer[:n])
	for _, allowed := range allowedTypes {
		if strings.HasPrefix(mimeType, allowed) {
			return mimeType, nil
		}
	}

	return mimeType, ErrInvalidFileType
}

func IsAudio(mimeType string) bool {
	return strings.HasPrefix(mimeType, "audio/") || mimeType == "application/ogg"
}

func IsVideo(mimeType string) bool {
	return strings.HasPrefix(mimeType, "video/")
}

// ObjectName builds a collision-free storage key under dir, keeping the
// original extension.
func ObjectName(dir, originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	return dir + "/" + GenerateID() + ext
}
