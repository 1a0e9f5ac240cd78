package mailer

import (
	"strings"

	"golang.org/x/net/html"
)

// TextFromHTML derives a plain-text rendering of an HTML email body, so
// callers with only an HTML body can still send a text/plain alternative
// part. Script and style content is dropped, block elements turn into line
// breaks, and link targets follow their link text in parentheses. The send
// path never calls this on its own; bodies go out exactly as given.
func TextFromHTML(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		// html.Parse recovers from almost any input, so if it gives up
		// there's nothing worth rendering
		return ""
	}
	var b strings.Builder
	writeNodeText(&b, doc)
	return tidyWhitespace(b.String())
}

func writeNodeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "head":
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNodeText(b, c)
	}

	if n.Type != html.ElementNode {
		return
	}
	switch n.Data {
	case "a":
		if href := attrVal(n, "href"); href != "" {
			b.WriteString(" (" + href + ")")
		}
	case "p", "div", "li", "tr", "br", "h1", "h2", "h3", "h4", "h5", "h6":
		b.WriteString("\n")
	}
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// tidyWhitespace collapses the runs of spaces and blank lines that HTML
// indentation leaves behind once tags are stripped.
func tidyWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true // swallows leading blank lines
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, l)
		blank = false
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
