package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"net/url"

	"harmonix/camelot"
	"harmonix/track"
)

// rekordbox-style XML document layout.

type xmlDocument struct {
	XMLName    xml.Name      `xml:"DJ_PLAYLISTS"`
	Version    string        `xml:"Version,attr"`
	Product    xmlProduct    `xml:"PRODUCT"`
	Collection xmlCollection `xml:"COLLECTION"`
	Playlists  xmlPlaylists  `xml:"PLAYLISTS"`
}

type xmlProduct struct {
	Name    string `xml:"Name,attr"`
	Version string `xml:"Version,attr"`
}

type xmlCollection struct {
	Entries int        `xml:"Entries,attr"`
	Tracks  []xmlTrack `xml:"TRACK"`
}

type xmlTrack struct {
	TrackID    int               `xml:"TrackID,attr"`
	Name       string            `xml:"Name,attr"`
	Artist     string            `xml:"Artist,attr"`
	Genre      string            `xml:"Genre,attr"`
	TotalTime  int               `xml:"TotalTime,attr"`
	AverageBpm string            `xml:"AverageBpm,attr"`
	Tonality   string            `xml:"Tonality,attr"`
	Location   string            `xml:"Location,attr"`
	Marks      []xmlPositionMark `xml:"POSITION_MARK"`
}

type xmlPositionMark struct {
	Name  string `xml:"Name,attr"`
	Type  int    `xml:"Type,attr"`
	Start string `xml:"Start,attr"`
	Num   int    `xml:"Num,attr"`
}

type xmlPlaylists struct {
	Root xmlNode `xml:"NODE"`
}

type xmlNode struct {
	Type     int           `xml:"Type,attr"`
	Name     string        `xml:"Name,attr"`
	Count    int           `xml:"Count,attr,omitempty"`
	Entries  int           `xml:"Entries,attr,omitempty"`
	KeyType  int           `xml:"KeyType,attr,omitempty"`
	Children []xmlNode     `xml:"NODE,omitempty"`
	Tracks   []xmlTrackRef `xml:"TRACK,omitempty"`
}

type xmlTrackRef struct {
	Key int `xml:"Key,attr"`
}

// WriteXML renders the playlist as a rekordbox-style collection: track
// attributes plus MIX IN / MIX OUT position marks with microsecond
// precision.
func WriteXML(w io.Writer, name string, playlist []*track.Track) error {
	doc := xmlDocument{
		Version: "1.0.0",
		Product: xmlProduct{Name: "harmonix", Version: "1.0"},
	}
	doc.Collection.Entries = len(playlist)

	refs := make([]xmlTrackRef, 0, len(playlist))
	for i, t := range playlist {
		id := i + 1
		doc.Collection.Tracks = append(doc.Collection.Tracks, xmlTrack{
			TrackID:    id,
			Name:       t.Title,
			Artist:     t.Artist,
			Genre:      t.Genre,
			TotalTime:  int(math.Round(t.DurationS)),
			AverageBpm: fmt.Sprintf("%.2f", t.BPM),
			Tonality:   camelot.Tonality(t.Camelot),
			Location:   fileURI(t.Path),
			Marks: []xmlPositionMark{
				{Name: "MIX IN", Type: 0, Start: fmt.Sprintf("%.6f", t.MixInS), Num: 0},
				{Name: "MIX OUT", Type: 0, Start: fmt.Sprintf("%.6f", t.MixOutS), Num: 1},
			},
		})
		refs = append(refs, xmlTrackRef{Key: id})
	}

	doc.Playlists.Root = xmlNode{
		Type:  0,
		Name:  "ROOT",
		Count: 1,
		Children: []xmlNode{{
			Type:    1,
			Name:    name,
			KeyType: 0,
			Entries: len(playlist),
			Tracks:  refs,
		}},
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func fileURI(path string) string {
	u := url.URL{Scheme: "file", Host: "localhost", Path: path}
	return u.String()
}
