package auth_test

import (
	"testing"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/auth"
	"github.com/stretchr/testify/assert"
)

func TestRedirectSanitizer_Normalize(t *testing.T) {
	sanitizer := auth.NewRedirectSanitizer("", "")

	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"empty", "", "index.php"},
		{"whitespace only", "   \t ", "index.php"},
		{"absolute http", "http://evil.example/x", "index.php"},
		{"uppercase https", "HTTPS://evil.example", "index.php"},
		{"mixed case scheme", "hTtP://evil.example", "index.php"},
		{"leading whitespace", "  https://evil.example", "index.php"},
		{"embedded tab in scheme", "ht\ttps://evil.example", "index.php"},
		{"embedded newline in scheme", "http\n://evil.example", "index.php"},
		{"partial scheme", "http:/evil.example", "index.php"},
		{"javascript scheme", "javascript:alert(1)", "index.php"},
		{"protocol relative", "//evil.example/x", "index.php"},
		{"backslash protocol relative", `\\evil.example`, "index.php"},
		{"mixed slash protocol relative", `/\evil.example`, "index.php"},
		{"single backslash", `\evil.example`, "index.php"},
		{"backslash then slash", `\/evil.example`, "index.php"},
		{"padded backslash", "  \\evil.example", "index.php"},
		{"inner backslash", `account\orders`, "account/orders"},
		{"scheme inside query", "page.php?u=http://evil.example", "index.php"},
		{"bare route name", "products", "products.php"},
		{"trimmed route name", "  products  ", "products.php"},
		{"page with extension", "cart.php", "cart.php"},
		{"path with separator", "account/orders", "account/orders"},
		{"rooted path", "/orders.php", "/orders.php"},
		{"well formed query", "page?a=1&b=2", "page?a=1&b=2"},
		{"ampersand without question mark", "page&b=2", "page?b=2"},
		{"ampersand before question mark", "page&a=1?b=2", "page?a=1?b=2"},
		{"query with extension", "products.php&category=3", "products.php?category=3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizer.Normalize(tt.raw))
		})
	}
}

func TestRedirectSanitizer_CustomDefaults(t *testing.T) {
	sanitizer := auth.NewRedirectSanitizer("home.html", "html")

	assert.Equal(t, "home.html", sanitizer.Default())
	assert.Equal(t, "home.html", sanitizer.Normalize("https://evil.example"))
	assert.Equal(t, "products.html", sanitizer.Normalize("products"))
}

func TestRedirectSanitizer_NormalizeIsStable(t *testing.T) {
	sanitizer := auth.NewRedirectSanitizer("", "")

	inputs := []string{"", "products", "page&b=2", "HTTPS://evil.example", "account/orders", "page?a=1&b=2"}
	for _, in := range inputs {
		once := sanitizer.Normalize(in)
		assert.Equal(t, once, sanitizer.Normalize(once), "normalizing %q twice should not change it", in)
	}
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		target   string
		expected string
	}{
		{"index.php?logged_out=1", "/index.php?logged_out=1"},
		{"/orders.php", "/orders.php"},
		{"//evil.example", "/evil.example"},
		{`\evil.example`, "/evil.example"},
		{`/\evil.example`, "/evil.example"},
		{`\/\evil.example`, "/evil.example"},
		{"", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			assert.Equal(t, tt.expected, auth.LocalPath(tt.target))
		})
	}
}
