package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// ErrorPage renders the minimal document served by the static file server for 403, 404
// and 500 responses.
func ErrorPage(data ErrorPageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		parts := []string{
			`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>`,
			templ.EscapeString(data.Title),
			`</title></head><body><main class="error-page"><h1>`,
			templ.EscapeString(data.StatusLabel),
			`</h1><p>`,
			templ.EscapeString(data.Message),
			`</p>`,
		}
		if data.Path != "" {
			parts = append(parts, `<p><code>`, templ.EscapeString(data.Path), `</code></p>`)
		}
		parts = append(parts, `<p><a href="/">Back to the blog</a></p></main></body></html>`)

		for _, part := range parts {
			if _, err := io.WriteString(w, part); err != nil {
				return err
			}
		}
		return nil
	})
}
