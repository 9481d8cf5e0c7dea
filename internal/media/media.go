package media

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

type Kind int

const (
	KindNone Kind = iota
	KindImage
	KindYouTube
	KindVideo
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindYouTube:
		return "youtube"
	case KindVideo:
		return "video"
	case KindLink:
		return "link"
	}
	return "none"
}

var ErrInvalidLink = errors.New("media link must be an absolute http or https URL")

// Reference is an entry's media link after normalisation.
type Reference struct {
	Kind Kind
	URL  string
}

var (
	imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".avif"}
	videoExtensions = []string{".mp4", ".webm", ".ogg", ".mov"}
)

// Normalize classifies a user supplied link and rewrites YouTube watch and share links to their embed form.
// An empty link is KindNone and not an error.
func Normalize(link string) (Reference, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return Reference{Kind: KindNone}, nil
	}

	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Reference{}, ErrInvalidLink
	}

	if id := youTubeID(u); id != "" {
		return Reference{Kind: KindYouTube, URL: "https://www.youtube.com/embed/" + id}, nil
	}

	ext := strings.ToLower(path.Ext(u.Path))
	for _, e := range imageExtensions {
		if ext == e {
			return Reference{Kind: KindImage, URL: link}, nil
		}
	}
	for _, e := range videoExtensions {
		if ext == e {
			return Reference{Kind: KindVideo, URL: link}, nil
		}
	}

	return Reference{Kind: KindLink, URL: link}, nil
}

func youTubeID(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	host = strings.TrimPrefix(host, "m.")

	switch host {
	case "youtu.be":
		return strings.Trim(u.Path, "/")
	case "youtube.com":
		if u.Path == "/watch" {
			return u.Query().Get("v")
		}
		if id, ok := strings.CutPrefix(u.Path, "/embed/"); ok {
			return strings.Trim(id, "/")
		}
		if id, ok := strings.CutPrefix(u.Path, "/shorts/"); ok {
			return strings.Trim(id, "/")
		}
	}
	return ""
}

// IsImageContentType reports whether an upload's content type is one entries may carry.
func IsImageContentType(contentType string) bool {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg", "image/png", "image/gif", "image/webp", "image/avif":
		return true
	}
	return false
}

// ExtensionFor is the file extension used for stored uploads of contentType.
func ExtensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/avif":
		return ".avif"
	}
	return ""
}
