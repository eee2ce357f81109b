// Package nfo emits the Kodi/Jellyfin sidecar metadata files. Output is
// deterministic: fixed field order, two-space indent, utf-8 standalone
// declaration.
package nfo

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"
)

const header = `<?xml version="1.0" encoding="utf-8" standalone="yes"?>` + "\n"

// TimeType selects which timestamp feeds the year/aired fields.
type TimeType string

const (
	TimeFav TimeType = "favtime"
	TimePub TimeType = "pubtime"
)

// Video is the subset of a video row the serializer needs.
type Video struct {
	Bvid      string
	Name      string
	Intro     string
	UpperID   int64
	UpperName string
	FavTime   time.Time
	PubTime   time.Time
	Tags      []string
}

func (v Video) at(tt TimeType) time.Time {
	if tt == TimeFav {
		return v.FavTime
	}
	return v.PubTime
}

type cdata struct {
	Value string `xml:",cdata"`
}

type actor struct {
	Name string `xml:"name"`
	Role string `xml:"role"`
}

type uniqueID struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type showNFO struct {
	XMLName  xml.Name
	Plot     cdata    `xml:"plot"`
	Outline  string   `xml:"outline"`
	Title    string   `xml:"title"`
	Actor    actor    `xml:"actor"`
	Year     string   `xml:"year"`
	Genre    []string `xml:"genre"`
	UniqueID uniqueID `xml:"uniqueid"`
	Aired    string   `xml:"aired"`
}

func marshal(v any) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("nfo: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(header)
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func show(root string, v Video, tt TimeType) ([]byte, error) {
	at := v.at(tt)
	plot := fmt.Sprintf(
		`原始视频：<a href="https://www.bilibili.com/video/%s/">%s</a><br/><br/>%s`,
		v.Bvid, v.Bvid, v.Intro)
	return marshal(showNFO{
		XMLName:  xml.Name{Local: root},
		Plot:     cdata{Value: plot},
		Title:    v.Name,
		Actor:    actor{Name: v.UpperName, Role: ""},
		Year:     at.Format("2006"),
		Genre:    v.Tags,
		UniqueID: uniqueID{Type: "bilibili", Value: v.Bvid},
		Aired:    at.Format("2006-01-02"),
	})
}

// Movie renders the single-page sidecar.
func Movie(v Video, tt TimeType) ([]byte, error) { return show("movie", v, tt) }

// TVShow renders the multi-page container sidecar.
func TVShow(v Video, tt TimeType) ([]byte, error) { return show("tvshow", v, tt) }

type episodeNFO struct {
	XMLName xml.Name `xml:"episodedetails"`
	Plot    string   `xml:"plot"`
	Outline string   `xml:"outline"`
	Title   string   `xml:"title"`
	Season  int      `xml:"season"`
	Episode int      `xml:"episode"`
}

// Episode renders one page's sidecar; pid is the 1-based page index.
func Episode(title string, pid int) ([]byte, error) {
	return marshal(episodeNFO{Title: title, Season: 1, Episode: pid})
}

type personNFO struct {
	XMLName   xml.Name `xml:"person"`
	Plot      string   `xml:"plot"`
	Outline   string   `xml:"outline"`
	LockData  string   `xml:"lockdata"`
	DateAdded string   `xml:"dateadded"`
	Title     string   `xml:"title"`
	SortTitle string   `xml:"sorttitle"`
}

// Person renders the uploader sidecar; title and sorttitle carry the mid.
func Person(upperID int64, pubtime time.Time) ([]byte, error) {
	return marshal(personNFO{
		LockData:  "false",
		DateAdded: pubtime.Format("2006-01-02 15:04:05"),
		Title:     fmt.Sprintf("%d", upperID),
		SortTitle: fmt.Sprintf("%d", upperID),
	})
}
