package mapping

import (
	"encoding/json"
	"testing"
)

func mustDoc(t *testing.T, raw string) any {
	t.Helper()
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return doc
}

func TestResolve(t *testing.T) {
	doc := mustDoc(t, `{"a":{"b":[{"c":"deep"},{"c":"deeper"}],"n":7,"flag":true}}`)

	cases := []struct {
		path string
		want string
	}{
		{"a.b[0].c", "deep"},
		{"a.b[1].c", "deeper"},
		{"a.n", "7"},
		{"a.flag", "true"},
	}
	for _, c := range cases {
		got, ok := ResolveString(doc, c.path)
		if !ok || got != c.want {
			t.Fatalf("%q: got (%q, %v), want %q", c.path, got, ok, c.want)
		}
	}
}

func TestResolveBareIndex(t *testing.T) {
	doc := mustDoc(t, `[["x","y"]]`)
	got, ok := ResolveString(doc, "[0][1]")
	if !ok || got != "y" {
		t.Fatalf("got (%q, %v)", got, ok)
	}
}

func TestResolveMisses(t *testing.T) {
	doc := mustDoc(t, `{"a":{"b":["only"]}}`)
	for _, path := range []string{"a.c", "a.b[5]", "a.b[0].c", "a.b[-1]", "a.b[x]"} {
		if _, ok := Resolve(doc, path); ok {
			t.Fatalf("%q: expected miss", path)
		}
	}
}
