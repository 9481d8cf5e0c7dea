package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name     string
		link     string
		expected Reference
	}{
		{name: "empty", link: "  ", expected: Reference{Kind: KindNone}},
		{
			name:     "youtube watch link",
			link:     "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42",
			expected: Reference{Kind: KindYouTube, URL: "https://www.youtube.com/embed/dQw4w9WgXcQ"},
		},
		{
			name:     "youtube share link",
			link:     "https://youtu.be/dQw4w9WgXcQ?si=abc",
			expected: Reference{Kind: KindYouTube, URL: "https://www.youtube.com/embed/dQw4w9WgXcQ"},
		},
		{
			name:     "youtube embed link",
			link:     "https://www.youtube.com/embed/dQw4w9WgXcQ",
			expected: Reference{Kind: KindYouTube, URL: "https://www.youtube.com/embed/dQw4w9WgXcQ"},
		},
		{
			name:     "image",
			link:     "https://cdn.example.com/covers/Frieren.JPG",
			expected: Reference{Kind: KindImage, URL: "https://cdn.example.com/covers/Frieren.JPG"},
		},
		{
			name:     "video file",
			link:     "https://cdn.example.com/op.webm",
			expected: Reference{Kind: KindVideo, URL: "https://cdn.example.com/op.webm"},
		},
		{
			name:     "anything else",
			link:     "https://example.com/page",
			expected: Reference{Kind: KindLink, URL: "https://example.com/page"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ref, err := Normalize(tc.link)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ref)
		})
	}
}

func TestNormalize_RejectsNonHTTP(t *testing.T) {
	for _, link := range []string{"javascript:alert(1)", "ftp://example.com/a.png", "not a url", "/relative.png"} {
		_, err := Normalize(link)
		assert.ErrorIs(t, err, ErrInvalidLink, link)
	}
}

func TestImageContentTypes(t *testing.T) {
	assert.True(t, IsImageContentType("image/png"))
	assert.False(t, IsImageContentType("text/html"))
	assert.Equal(t, ".jpg", ExtensionFor("image/jpeg"))
	assert.Equal(t, "", ExtensionFor("application/pdf"))
}
