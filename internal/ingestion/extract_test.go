package ingestion

import (
	"errors"
	"strings"
	"testing"
)

func TestExtractTextPlain(t *testing.T) {
	got, err := ExtractText("text/plain; charset=utf-8", []byte("  hello world \n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestExtractTextHTMLDropsChrome(t *testing.T) {
	html := `<html><head><title>Notes</title><style>body{color:red}</style></head>
<body>
<nav>Home | About</nav>
<script>alert("x")</script>
<h1>Photosynthesis</h1>
<p>Plants convert    light into energy.</p>
<footer>Copyright</footer>
</body></html>`

	got, err := ExtractText("text/html", []byte(html))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, dropped := range []string{"Home | About", "alert", "Copyright", "color:red"} {
		if strings.Contains(got, dropped) {
			t.Errorf("output should not contain %q, got %q", dropped, got)
		}
	}
	if !strings.Contains(got, "Photosynthesis") {
		t.Errorf("heading missing from %q", got)
	}
	if !strings.Contains(got, "Plants convert light into energy.") {
		t.Errorf("whitespace not collapsed in %q", got)
	}
}

func TestExtractTextUnsupportedType(t *testing.T) {
	for _, mimeType := range []string{"image/png", "application/msword", "audio/mpeg", ""} {
		if _, err := ExtractText(mimeType, []byte("data")); !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("mime %q: err = %v, want ErrUnsupportedType", mimeType, err)
		}
	}
}

func TestExtractTextBrokenPDF(t *testing.T) {
	if _, err := ExtractText("application/pdf", []byte("not a pdf")); err == nil {
		t.Errorf("expected error for invalid pdf data")
	}
}
