package handlers

import (
	"embed"
	"html/template"
	"path"

	"github.com/gin-contrib/multitemplate"
)

//go:embed templates/*.html
var templateFS embed.FS

const layoutFile = "templates/layout.html"

// pages 页面名 -> 视图文件，全部套用 layout.html
var pages = map[string]string{
	"unsubscribe.html": "templates/unsubscribe.html",
	"error.html":       "templates/error.html",
}

// LoadTemplates 每个页面单独解析，避免各视图的 content 块互相覆盖
func LoadTemplates() (multitemplate.Renderer, error) {
	r := multitemplate.NewRenderer()
	for name, view := range pages {
		tmpl, err := template.New(path.Base(layoutFile)).ParseFS(templateFS, layoutFile, view)
		if err != nil {
			return nil, err
		}
		r.Add(name, tmpl)
	}
	return r, nil
}
