package describe

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// RewriteContent prepares fetched description markup for embedding in the
// player page: every src, srcset and href attribute is resolved to an
// absolute URL against the content document's own location, so relative
// asset references inside third-party content keep working wherever the
// host page lives. If the document contains an <article> region only that
// region's markup is kept, otherwise the whole <body>.
func RewriteContent(markup string, contentURL *url.URL) (string, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("failed to parse description markup: %w", err)
	}

	rewriteAttrs(doc, contentURL)

	root := findElement(doc, "article")
	if root == nil {
		root = findElement(doc, "body")
	}
	if root == nil {
		root = doc
	}

	var b strings.Builder
	if root.Data == "body" && root.Type == html.ElementNode {
		// Keep the body's children, not the body tag itself.
		for c := root.FirstChild; c != nil; c = c.NextSibling {
			if err := html.Render(&b, c); err != nil {
				return "", fmt.Errorf("failed to render description markup: %w", err)
			}
		}
	} else {
		if err := html.Render(&b, root); err != nil {
			return "", fmt.Errorf("failed to render description markup: %w", err)
		}
	}
	return b.String(), nil
}

func rewriteAttrs(n *html.Node, base *url.URL) {
	if n.Type == html.ElementNode {
		for i, attr := range n.Attr {
			switch attr.Key {
			case "src", "href":
				n.Attr[i].Val = absolutize(attr.Val, base)
			case "srcset":
				n.Attr[i].Val = rewriteSrcset(attr.Val, base)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		rewriteAttrs(c, base)
	}
}

// absolutize resolves ref against base. Fragments, data URIs and anything
// unparsable pass through untouched.
func absolutize(ref string, base *url.URL) string {
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "data:") {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// rewriteSrcset resolves each URL of a srcset list, keeping descriptors
// ("480w", "2x") intact.
func rewriteSrcset(val string, base *url.URL) string {
	entries := strings.Split(val, ",")
	for i, entry := range entries {
		fields := strings.Fields(entry)
		if len(fields) == 0 {
			continue
		}
		fields[0] = absolutize(fields[0], base)
		entries[i] = strings.Join(fields, " ")
	}
	return strings.Join(entries, ", ")
}

func findElement(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, name); found != nil {
			return found
		}
	}
	return nil
}
