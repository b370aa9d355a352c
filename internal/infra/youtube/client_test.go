package youtube

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "watch URL",
			input:    "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			expected: "dQw4w9WgXcQ",
		},
		{
			name:     "watch URL with extra params",
			input:    "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s&list=PLx",
			expected: "dQw4w9WgXcQ",
		},
		{
			name:     "short link",
			input:    "https://youtu.be/dQw4w9WgXcQ",
			expected: "dQw4w9WgXcQ",
		},
		{
			name:     "short link with query",
			input:    "https://youtu.be/dQw4w9WgXcQ?si=abc",
			expected: "dQw4w9WgXcQ",
		},
		{
			name:     "shorts URL",
			input:    "https://www.youtube.com/shorts/abc123",
			expected: "abc123",
		},
		{
			name:     "music URL",
			input:    "https://music.youtube.com/watch?v=dQw4w9WgXcQ",
			expected: "dQw4w9WgXcQ",
		},
		{
			name:     "plain ID",
			input:    "dQw4w9WgXcQ",
			expected: "dQw4w9WgXcQ",
		},
		{
			name:     "whitespace",
			input:    "  dQw4w9WgXcQ  ",
			expected: "dQw4w9WgXcQ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractVideoID(tt.input))
		})
	}
}

func TestWatchURL(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", WatchURL("abc"))
}
