// Package export renders playlists for consumption by players and DJ
// software: an extended M3U dialect carrying mix points, and a
// rekordbox-style XML collection.
package export

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"harmonix/track"
)

// M3UEntry is one parsed triple of the extended M3U form.
type M3UEntry struct {
	Path      string
	Artist    string
	Title     string
	DurationS int
	MixInS    float64
	MixOutS   float64
}

// WriteM3U emits the playlist in the extended M3U dialect: UTF-8, LF line
// endings, one EXTINF/MIXPOINT/path triple per track, blank line between.
func WriteM3U(w io.Writer, name string, playlist []*track.Track) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "#EXTM3U\n")
	fmt.Fprintf(bw, "#EXTENC:UTF-8\n")
	fmt.Fprintf(bw, "#PLAYLIST:%s\n", name)
	for _, t := range playlist {
		fmt.Fprintf(bw, "\n")
		fmt.Fprintf(bw, "#EXTINF:%d,%s - %s\n", int(math.Round(t.DurationS)), t.Artist, t.Title)
		fmt.Fprintf(bw, "#MIXPOINT:%s,%s\n", formatSeconds(t.MixInS), formatSeconds(t.MixOutS))
		fmt.Fprintf(bw, "%s\n", t.Path)
	}
	return bw.Flush()
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// ParseM3U reads the dialect written by WriteM3U back into entries; it is
// the other half of the export round trip.
func ParseM3U(r io.Reader) (name string, entries []M3UEntry, err error) {
	sc := bufio.NewScanner(r)
	var cur M3UEntry
	var haveInf bool
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		switch {
		case line == "" || line == "#EXTM3U" || strings.HasPrefix(line, "#EXTENC:"):
		case strings.HasPrefix(line, "#PLAYLIST:"):
			name = strings.TrimPrefix(line, "#PLAYLIST:")
		case strings.HasPrefix(line, "#EXTINF:"):
			body := strings.TrimPrefix(line, "#EXTINF:")
			comma := strings.Index(body, ",")
			if comma < 0 {
				return "", nil, fmt.Errorf("malformed EXTINF line: %q", line)
			}
			secs, err := strconv.Atoi(body[:comma])
			if err != nil {
				return "", nil, fmt.Errorf("malformed EXTINF duration: %q", line)
			}
			cur = M3UEntry{DurationS: secs}
			display := body[comma+1:]
			if sep := strings.Index(display, " - "); sep >= 0 {
				cur.Artist = display[:sep]
				cur.Title = display[sep+3:]
			} else {
				cur.Title = display
			}
			haveInf = true
		case strings.HasPrefix(line, "#MIXPOINT:"):
			body := strings.TrimPrefix(line, "#MIXPOINT:")
			parts := strings.SplitN(body, ",", 2)
			if len(parts) != 2 {
				return "", nil, fmt.Errorf("malformed MIXPOINT line: %q", line)
			}
			if cur.MixInS, err = strconv.ParseFloat(parts[0], 64); err != nil {
				return "", nil, fmt.Errorf("malformed MIXPOINT in: %q", line)
			}
			if cur.MixOutS, err = strconv.ParseFloat(parts[1], 64); err != nil {
				return "", nil, fmt.Errorf("malformed MIXPOINT out: %q", line)
			}
		case strings.HasPrefix(line, "#"):
		default:
			if !haveInf {
				return "", nil, fmt.Errorf("path without EXTINF: %q", line)
			}
			cur.Path = line
			entries = append(entries, cur)
			cur = M3UEntry{}
			haveInf = false
		}
	}
	return name, entries, sc.Err()
}
