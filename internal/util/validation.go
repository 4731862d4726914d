package util

import (
	"net/url"
	"path"
	"strings"
)

// Media types accepted on messages
const (
	MediaPhoto = "photo"
	MediaVideo = "video"
)

var mediaExtensions = map[string]string{
	".jpg":  MediaPhoto,
	".jpeg": MediaPhoto,
	".png":  MediaPhoto,
	".mp4":  MediaVideo,
	".mov":  MediaVideo,
}

// MediaTypeFromURL classifies an attachment by its file extension.
// It returns false for anything that is not a supported photo or video.
func MediaTypeFromURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Path == "" {
		return "", false
	}
	kind, ok := mediaExtensions[strings.ToLower(path.Ext(u.Path))]
	return kind, ok
}
