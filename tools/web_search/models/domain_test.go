package models

import "testing"

func TestRegistrableDomain(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.example.com/a", "example.com"},
		{"https://news.bbc.co.uk/world", "bbc.co.uk"},
		{"http://EN.Wikipedia.org/wiki/Go", "wikipedia.org"},
		{"not a url", "not a url"},
		{"https://localhost/x", "https://localhost/x"},
	}
	for _, tc := range tests {
		if got := RegistrableDomain(tc.in); got != tc.want {
			t.Errorf("RegistrableDomain(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewResult(t *testing.T) {
	t.Parallel()
	if _, ok := NewResult("t", "  ", "s"); ok {
		t.Fatal("expected empty link to be rejected")
	}
	r, ok := NewResult(" Title ", "https://blog.golang.org/x", "")
	if !ok {
		t.Fatal("expected result")
	}
	if r.Snippet != NoSnippet {
		t.Errorf("snippet = %q", r.Snippet)
	}
	if r.Domain != "golang.org" || r.Title != "Title" {
		t.Errorf("unexpected result %+v", r)
	}
}
