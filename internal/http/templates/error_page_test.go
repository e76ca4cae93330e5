package templates

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestErrorPageEscapesValues(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := ErrorPage(ErrorPageData{
		Title:       "404 Not Found",
		StatusLabel: "404 Not Found",
		Message:     "No such file",
		Path:        "/<script>.html",
	}).Render(context.Background(), &buf)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	body := buf.String()
	if strings.Contains(body, "<script>") {
		t.Fatalf("expected path to be escaped, got %q", body)
	}
	if !strings.Contains(body, "&lt;script&gt;") || !strings.Contains(body, "<h1>404 Not Found</h1>") {
		t.Fatalf("unexpected body %q", body)
	}
}
