// Package feed parses RSS 2.0 and Atom 1.0 syndication documents into alert
// references.
//
// The dialect is chosen from the response media type:
//   - application/rss+xml → RSS
//   - application/atom+xml → Atom
//   - application/xml, text/xml → RSS, falling back to Atom
package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"mime"
	"strings"

	"github.com/couchcryptid/cap-alert-service/internal/domain"
	"golang.org/x/net/html/charset"
)

// CAPMediaType marks a link as pointing at a CAP document.
const CAPMediaType = "application/cap+xml"

// Parse decodes data according to contentType. source names the feed in
// returned errors. Entries without a usable link are dropped.
func Parse(source string, data []byte, contentType string) ([]domain.AlertReference, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	var refs []domain.AlertReference
	switch mediaType {
	case "application/rss+xml":
		refs, err = parseRSS(data)
	case "application/atom+xml":
		refs, err = parseAtom(data)
	case "application/xml", "text/xml":
		if refs, err = parseRSS(data); err != nil {
			refs, err = parseAtom(data)
		}
	default:
		err = fmt.Errorf("%w %q", domain.ErrUnsupportedMediaType, contentType)
	}
	if err != nil {
		return nil, &domain.ParseError{Source: source, Err: err}
	}
	return refs, nil
}

func decode(data []byte, v any) error {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = charset.NewReaderLabel
	return d.Decode(v)
}

type link struct {
	Href string
	Type string
}

// selectLink returns the only link, or else the first CAP-typed link.
func selectLink(links []link) (string, bool) {
	if len(links) == 1 {
		return links[0].Href, true
	}
	for _, l := range links {
		if l.Type == CAPMediaType {
			return l.Href, true
		}
	}
	return "", false
}

// --- RSS 2.0 ---

type rssRoot struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	GUID  string `xml:"guid"`
	Title string `xml:"title"`
	Link  string `xml:"link"`
}

func parseRSS(data []byte) ([]domain.AlertReference, error) {
	var root rssRoot
	if err := decode(data, &root); err != nil {
		return nil, fmt.Errorf("rss: %w", err)
	}

	refs := make([]domain.AlertReference, 0, len(root.Channel.Items))
	for _, item := range root.Channel.Items {
		var links []link
		if l := strings.TrimSpace(item.Link); l != "" {
			links = append(links, link{Href: l})
		}
		href, ok := selectLink(links)
		if !ok {
			continue
		}
		guid := strings.TrimSpace(item.GUID)
		if guid == "" {
			guid = href
		}
		refs = append(refs, domain.AlertReference{
			GUID:  guid,
			Title: strings.TrimSpace(item.Title),
			Link:  href,
		})
	}
	return refs, nil
}

// --- Atom 1.0 ---

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID    string     `xml:"id"`
	Title string     `xml:"title"`
	Links []atomLink `xml:"link"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

func parseAtom(data []byte) ([]domain.AlertReference, error) {
	var root atomFeed
	if err := decode(data, &root); err != nil {
		return nil, fmt.Errorf("atom: %w", err)
	}

	refs := make([]domain.AlertReference, 0, len(root.Entries))
	for _, entry := range root.Entries {
		links := make([]link, 0, len(entry.Links))
		for _, l := range entry.Links {
			links = append(links, link{Href: strings.TrimSpace(l.Href), Type: strings.TrimSpace(l.Type)})
		}
		href, ok := selectLink(links)
		if !ok || href == "" {
			continue
		}
		guid := strings.TrimSpace(entry.ID)
		if guid == "" {
			guid = href
		}
		refs = append(refs, domain.AlertReference{
			GUID:  guid,
			Title: strings.TrimSpace(entry.Title),
			Link:  href,
		})
	}
	return refs, nil
}
