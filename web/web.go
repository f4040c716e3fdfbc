// Package web 内嵌页面模板
package web

import (
	"embed"
	"html/template"
	"time"
)

// FS 内嵌的 HTML 模板
//
//go:embed templates/*.html
var FS embed.FS

// Templates 解析内嵌模板
func Templates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"formatTime": func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
		"formatDuration": func(d time.Duration) string {
			return d.Round(time.Millisecond).String()
		},
	}).ParseFS(FS, "templates/*.html")
}
