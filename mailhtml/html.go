// Package mailhtml rewrites message HTML fetched from the provider before it
// is handed to callers.
package mailhtml

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExternalizeLinks finds all a tags and adds target="_blank" and
// rel="noopener noreferrer" attrs so links open in a new tab rather than
// inside whatever frame is displaying the message
func ExternalizeLinks(html string) (string, error) {
	sr := strings.NewReader(html)

	doc, err := goquery.NewDocumentFromReader(sr)
	if err != nil {
		return "", fmt.Errorf("ExternalizeLinks: failed to create goquery doc: %w", err)
	}

	doc.Find("a").Each(func(i int, s *goquery.Selection) {
		s.SetAttr("target", "_blank")
		s.SetAttr("rel", "noopener noreferrer")
	})

	modifiedHTML, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("ExternalizeLinks: failed to get html doc: %w", err)
	}

	return modifiedHTML, nil
}

// StripScripts removes script tags from message HTML. Remote mail is
// untrusted input; we never serve it with scripts intact.
func StripScripts(html string) (string, error) {
	sr := strings.NewReader(html)

	doc, err := goquery.NewDocumentFromReader(sr)
	if err != nil {
		return "", fmt.Errorf("StripScripts: failed to create goquery doc: %w", err)
	}

	doc.Find("script").Remove()

	modifiedHTML, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("StripScripts: failed to get html doc: %w", err)
	}

	return modifiedHTML, nil
}
