package parser

import (
	"bytes"
	"net/url"

	"golang.org/x/net/html"
)

// DiscoverLinks returns the followable <a href> targets of a page in document
// order, resolved against pageURL, restricted to origin and de-duplicated.
func DiscoverLinks(content []byte, pageURL string, origin Origin) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	z := html.NewTokenizer(bytes.NewReader(content))
	seen := make(map[string]struct{})
	var links []string
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return links
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := z.TagName()
		if string(name) != "a" || !hasAttr {
			continue
		}
		for {
			key, val, more := z.TagAttr()
			if string(key) == "href" {
				if abs := ResolveLink(base, string(val)); abs != "" && origin.Contains(abs) {
					if _, dup := seen[abs]; !dup {
						seen[abs] = struct{}{}
						links = append(links, abs)
					}
				}
				break
			}
			if !more {
				break
			}
		}
	}
}
