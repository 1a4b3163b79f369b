package analysis

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dhowden/tag"
)

// UnknownField fills artist/title/genre when neither tags nor the filename
// yield a value.
const UnknownField = "Unknown"

// Filename patterns, evaluated in order. The first pattern with both
// groups non-empty and free of path separators wins.
var filenamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(.+?) - (.+)$`),           // artist - title
	regexp.MustCompile(`^\d{1,3} - (.+?) - (.+)$`), // nn - artist - title
	regexp.MustCompile(`^(.+?)-(.+)$`),             // artist-title
	regexp.MustCompile(`^(.+?)_(.+)$`),             // artist_title
}

var leadingTrackNumber = regexp.MustCompile(`^\d{1,3}$`)

// ReadTags pulls artist/title/genre from the file's metadata tags. Missing
// tags or unreadable files yield empty strings.
func ReadTags(path string) (artist, title, genre string) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", ""
	}
	defer f.Close()
	m, err := tag.ReadFrom(f)
	if err != nil {
		return "", "", ""
	}
	return m.Artist(), m.Title(), m.Genre()
}

// ParseFilename extracts (artist, title) from a file's base name using the
// fixed pattern list. A match whose artist group is only a track number is
// skipped so the numbered pattern can claim it.
func ParseFilename(name string) (artist, title string, ok bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	for _, pat := range filenamePatterns {
		m := pat.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		a := strings.TrimSpace(m[1])
		t := strings.TrimSpace(m[2])
		if a == "" || t == "" {
			continue
		}
		if leadingTrackNumber.MatchString(a) {
			continue
		}
		if strings.ContainsAny(a, `/\`) || strings.ContainsAny(t, `/\`) {
			continue
		}
		return a, t, true
	}
	return "", "", false
}

// ResolveMetadata combines tag reading with the filename fallback.
func ResolveMetadata(path string) (artist, title, genre string) {
	artist, title, genre = ReadTags(path)
	if artist == "" || title == "" {
		if a, t, ok := ParseFilename(filepath.Base(path)); ok {
			if artist == "" {
				artist = a
			}
			if title == "" {
				title = t
			}
		}
	}
	if artist == "" {
		artist = UnknownField
	}
	if title == "" {
		title = UnknownField
	}
	if genre == "" {
		genre = UnknownField
	}
	return artist, title, genre
}
