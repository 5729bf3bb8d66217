package feed

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxLinkDisplay 自动链接显示文本的最大长度
const MaxLinkDisplay = 50

var (
	markupLink = regexp.MustCompile(`\[([^\[\]]+)\]\(([^()\s]+)\)`)
	bareLink   = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"]+`)
)

type segment struct {
	text   string
	anchor bool
}

// RenderLinks 把帖子正文转换为安全的 HTML：先处理 [文本](地址) 标记，再自动链接其余文本中的网址
func RenderLinks(text string) string {
	var out strings.Builder
	for _, seg := range renderMarkup(text) {
		if seg.anchor {
			out.WriteString(seg.text)
			continue
		}
		out.WriteString(autolink(seg.text))
	}
	return out.String()
}

func renderMarkup(text string) []segment {
	var segs []segment
	last := 0
	for _, m := range markupLink.FindAllStringSubmatchIndex(text, -1) {
		href, ok := normalizeURL(text[m[4]:m[5]])
		if !ok {
			// 无效地址保留原文
			continue
		}
		if m[0] > last {
			segs = append(segs, segment{text: text[last:m[0]]})
		}
		segs = append(segs, segment{text: anchor(href, text[m[2]:m[3]]), anchor: true})
		last = m[1]
	}
	if last < len(text) {
		segs = append(segs, segment{text: text[last:]})
	}
	return segs
}

func autolink(text string) string {
	var out strings.Builder
	last := 0
	for _, m := range bareLink.FindAllStringIndex(text, -1) {
		raw := strings.TrimRight(text[m[0]:m[1]], ".,;:!?)]}'")
		end := m[0] + len(raw)
		href, ok := normalizeURL(raw)
		if !ok {
			continue
		}
		out.WriteString(html.EscapeString(text[last:m[0]]))
		out.WriteString(anchor(href, truncateDisplay(raw)))
		last = end
	}
	out.WriteString(html.EscapeString(text[last:]))
	return out.String()
}

// normalizeURL 没有协议的地址补全为 https，并校验能否解析出主机名
func normalizeURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" || strings.HasPrefix(u.Host, ".") || strings.HasSuffix(u.Host, ".") {
		return "", false
	}
	return u.String(), true
}

func truncateDisplay(s string) string {
	if utf8.RuneCountInString(s) <= MaxLinkDisplay {
		return s
	}
	return string([]rune(s)[:MaxLinkDisplay]) + "..."
}

func anchor(href, label string) string {
	return `<a href="` + html.EscapeString(href) + `" target="_blank" rel="noopener noreferrer">` +
		html.EscapeString(label) + `</a>`
}
