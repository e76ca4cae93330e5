package templates

// ErrorPageData holds information for rendering an error view.
type ErrorPageData struct {
	Title       string
	StatusLabel string
	Message     string
	// Path is the requested path, shown back to the visitor when set.
	Path string
}
