package catalog

import (
	"strings"
	"testing"
)

func TestBuiltinInvariants(t *testing.T) {
	c := New()

	if c.Len() == 0 {
		t.Fatal("built-in catalog is empty")
	}

	seen := make(map[string]bool)
	for _, e := range c.List() {
		if err := ValidateFilename(e.Filename); err != nil {
			t.Errorf("entry %q has invalid filename: %v", e.Name, err)
		}
		if seen[e.Filename] {
			t.Errorf("duplicate filename %q", e.Filename)
		}
		seen[e.Filename] = true

		if !strings.HasSuffix(e.Filename, ".gguf") {
			t.Errorf("entry %q filename %q does not end in .gguf", e.Name, e.Filename)
		}
		if !strings.HasPrefix(e.URL, "https://") {
			t.Errorf("entry %q URL %q is not https", e.Name, e.URL)
		}
		if e.Size == "" {
			t.Errorf("entry %q has no size label", e.Name)
		}
	}
}

func TestLookup(t *testing.T) {
	c := New()
	want := c.Default()

	got, ok := c.Lookup(want.Filename)
	if !ok {
		t.Fatalf("Lookup(%q) not found", want.Filename)
	}
	if got.URL != want.URL {
		t.Errorf("URL = %q, want %q", got.URL, want.URL)
	}

	if _, ok := c.Lookup("no-such-model.gguf"); ok {
		t.Error("Lookup of unknown filename returned ok")
	}
}

func TestListReturnsCopy(t *testing.T) {
	c := New()

	list := c.List()
	list[0].Filename = "mutated.gguf"

	if _, ok := c.Lookup("mutated.gguf"); ok {
		t.Error("mutating List() result changed the catalog")
	}
}

func TestValidateFilename(t *testing.T) {
	bad := []string{
		"",
		"../escape.gguf",
		"a/../b.gguf",
		"dir/model.gguf",
		`dir\model.gguf`,
		"..",
		".",
	}
	for _, name := range bad {
		if err := ValidateFilename(name); err == nil {
			t.Errorf("ValidateFilename(%q) = nil, want error", name)
		}
	}

	if err := ValidateFilename("model.Q4_K_M.gguf"); err != nil {
		t.Errorf("ValidateFilename(valid) = %v", err)
	}
}

func TestNewWithEntries(t *testing.T) {
	_, err := NewWithEntries([]Entry{
		{Name: "a", Filename: "a.gguf"},
		{Name: "b", Filename: "a.gguf"},
	})
	if err == nil {
		t.Error("duplicate filenames accepted")
	}

	_, err = NewWithEntries([]Entry{
		{Name: "a", Filename: "../a.gguf"},
	})
	if err == nil {
		t.Error("traversal filename accepted")
	}

	c, err := NewWithEntries([]Entry{
		{Name: "a", Filename: "a.gguf"},
		{Name: "b", Filename: "b.gguf"},
	})
	if err != nil {
		t.Fatalf("NewWithEntries() error = %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}
