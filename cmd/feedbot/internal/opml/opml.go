// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package opml reads and writes feed lists in the OPML format.
package opml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Title is the title of exported documents.
const Title = "feedbot feeds"

// ErrInvalid is returned by Parse when the input is not an OPML document.
var ErrInvalid = errors.New("opml: invalid document")

// dateLayout is the RFC 822 date format with a literal GMT zone.
const dateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

type document struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    head     `xml:"head"`
	Body    body     `xml:"body"`
}

type head struct {
	Title       string `xml:"title"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

type body struct {
	Outlines []outline `xml:"outline"`
}

type outline struct {
	Text     string    `xml:"text,attr,omitempty"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Outlines []outline `xml:"outline"`
}

// Parse returns the feed URLs of all outlines in an OPML document, at any
// depth, in document order and without duplicates.
func Parse(r io.Reader) ([]string, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var (
		urls []string
		seen = make(map[string]bool)
	)
	var walk func([]outline)
	walk = func(outlines []outline) {
		for _, o := range outlines {
			if u := strings.TrimSpace(o.XMLURL); u != "" && !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
			walk(o.Outlines)
		}
	}
	walk(doc.Body.Outlines)
	return urls, nil
}

// Write writes feeds as an OPML 1.0 document created at the given time.
func Write(w io.Writer, feeds []string, created time.Time) error {
	doc := document{
		Version: "1.0",
		Head: head{
			Title:       Title,
			DateCreated: created.UTC().Format(dateLayout),
		},
	}
	for _, u := range feeds {
		doc.Body.Outlines = append(doc.Body.Outlines, outline{Text: u, Title: u, Type: "rss", XMLURL: u})
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
