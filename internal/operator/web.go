package operator

import (
	"embed"
	"io/fs"
)

//go:embed web/index.html web/style.css
var webFS embed.FS

var reportCSS = mustReadWeb("web/style.css")

func mustReadWeb(name string) string {
	b, err := fs.ReadFile(webFS, name)
	if err != nil {
		panic(err)
	}
	return string(b)
}
