package utils

import (
	"html/template"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// EnhanceEmailHTML 为邮件正文中的图片加上尺寸限制，避免撑破模板
func EnhanceEmailHTML(htmlStr string) template.HTML {
	if htmlStr == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return template.HTML(htmlStr)
	}

	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		s.SetAttr("style", "max-width:100%;height:auto;")
		s.SetAttr("referrerpolicy", "no-referrer")
	})

	// goquery renders full document tags if missing, we just want the body content
	html, _ := doc.Find("body").Html()
	if html == "" {
		html, _ = doc.Html()
	}

	return template.HTML(html)
}

// PlainTextExcerpt 把 HTML（或 markdown 渲染结果）转为纯文本摘要，用于 Slack/Trello 等外部消息
func PlainTextExcerpt(htmlStr string, maxRunes int) string {
	if htmlStr == "" {
		return ""
	}

	text := htmlStr
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr)); err == nil {
		text = doc.Text()
	}
	text = strings.Join(strings.Fields(text), " ")

	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}

// MarkdownExcerpt markdown -> 纯文本摘要
func MarkdownExcerpt(source string, maxRunes int) string {
	return PlainTextExcerpt(string(RenderMarkdown(source)), maxRunes)
}
