package webview

import (
	"regexp"
	"strings"
	"testing"
)

var noncePattern = regexp.MustCompile(`^[A-Za-z0-9]{32}$`)

func TestNonce_Alphanumeric32(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		n, err := Nonce()
		if err != nil {
			t.Fatalf("nonce failed: %v", err)
		}
		if !noncePattern.MatchString(n) {
			t.Fatalf("bad nonce %q", n)
		}
		if seen[n] {
			t.Fatalf("duplicate nonce %q", n)
		}
		seen[n] = true
	}
}

func TestCSP(t *testing.T) {
	got := CSP("abc")
	want := "default-src 'none'; style-src 'self' 'unsafe-inline'; script-src 'nonce-abc'; connect-src 'self'"
	if got != want {
		t.Fatalf("unexpected csp:\n got %s\nwant %s", got, want)
	}
}

func TestRender_PanelsCarryNonce(t *testing.T) {
	for _, id := range []string{"jira", "coder", "jenkins"} {
		doc, err := Render(Page{ID: id, Title: "Panel " + id})
		if err != nil {
			t.Fatalf("render %s: %v", id, err)
		}
		html := string(doc.HTML)
		if !strings.Contains(html, `<script nonce="`+doc.Nonce+`">`) {
			t.Fatalf("%s: script tag missing nonce", id)
		}
		if !strings.Contains(html, "script-src 'nonce-"+doc.Nonce+"'") {
			t.Fatalf("%s: meta csp missing nonce", id)
		}
		if doc.CSP != CSP(doc.Nonce) {
			t.Fatalf("%s: document csp mismatch", id)
		}
		if !strings.Contains(html, `const panelId = "`+id+`"`) {
			t.Fatalf("%s: panel id not embedded", id)
		}
	}
}

func TestRender_FreshNoncePerRender(t *testing.T) {
	a, err := Render(Page{ID: "jira", Title: "Jira Story Bot"})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	b, err := Render(Page{ID: "jira", Title: "Jira Story Bot"})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if a.Nonce == b.Nonce {
		t.Fatal("expected a new nonce per render")
	}
}

func TestRender_EscapesTitle(t *testing.T) {
	doc, err := Render(Page{ID: "jira", Title: "<b>x</b>"})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if strings.Contains(string(doc.HTML), "<b>x</b>") {
		t.Fatal("title was not escaped")
	}
}

func TestRender_UnknownPanel(t *testing.T) {
	if _, err := Render(Page{ID: "nope"}); err == nil {
		t.Fatal("expected error for unknown panel")
	}
	if Has("layout") || Has("nope") || !Has("coder") {
		t.Fatal("unexpected Has results")
	}
}

func TestRenderIndex_ListsPanels(t *testing.T) {
	doc, err := RenderIndex([]Page{{ID: "jira", Title: "Jira Story Bot"}, {ID: "coder", Title: "Dev Bot"}})
	if err != nil {
		t.Fatalf("render index failed: %v", err)
	}
	html := string(doc.HTML)
	if !strings.Contains(html, `href="/panels/jira"`) || !strings.Contains(html, "Dev Bot") {
		t.Fatalf("index missing links: %s", html)
	}
	if strings.Contains(html, "<script") {
		t.Fatal("index should not carry a script")
	}
}
