// Package catalog holds the built-in list of models the assistant can run
// locally. Entries are fixed at build time; the filesystem decides what is
// actually installed.
package catalog

import (
	"fmt"
	"strings"
)

// Entry describes one downloadable model artifact.
type Entry struct {
	Name        string `json:"name"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	Size        string `json:"size"`
	Description string `json:"description"`
}

// builtin is the curated set of GGUF chat models recommended for the
// support assistant. Filenames double as on-disk names, so they must be
// unique and must not contain path separators.
var builtin = []Entry{
	{
		Name:        "TinyLlama 1.1B Chat",
		Filename:    "tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf",
		URL:         "https://huggingface.co/TheBloke/TinyLlama-1.1B-Chat-v1.0-GGUF/resolve/main/tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf",
		Size:        "670.0MB",
		Description: "Smallest option. Quick replies on modest CPUs; fine for short support answers.",
	},
	{
		Name:        "Llama 3.2 1B Instruct",
		Filename:    "Llama-3.2-1B-Instruct-Q4_K_M.gguf",
		URL:         "https://huggingface.co/bartowski/Llama-3.2-1B-Instruct-GGUF/resolve/main/Llama-3.2-1B-Instruct-Q4_K_M.gguf",
		Size:        "808.0MB",
		Description: "Good balance of speed and answer quality for everyday support questions.",
	},
	{
		Name:        "Qwen 2.5 1.5B Instruct",
		Filename:    "qwen2.5-1.5b-instruct-q4_k_m.gguf",
		URL:         "https://huggingface.co/Qwen/Qwen2.5-1.5B-Instruct-GGUF/resolve/main/qwen2.5-1.5b-instruct-q4_k_m.gguf",
		Size:        "986.0MB",
		Description: "Stronger multilingual answers; recommended when customers write in several languages.",
	},
	{
		Name:        "Mistral 7B Instruct v0.2",
		Filename:    "mistral-7b-instruct-v0.2.Q4_K_M.gguf",
		URL:         "https://huggingface.co/TheBloke/Mistral-7B-Instruct-v0.2-GGUF/resolve/main/mistral-7b-instruct-v0.2.Q4_K_M.gguf",
		Size:        "4.4GB",
		Description: "Best answer quality of the built-in set. Needs 8GB+ of RAM and a capable CPU.",
	},
}

func init() {
	if _, err := NewWithEntries(builtin); err != nil {
		panic(fmt.Sprintf("invalid built-in catalog: %v", err))
	}
}

// Catalog is a read-only view over a fixed set of entries.
type Catalog struct {
	entries []Entry
}

// New returns a catalog backed by the built-in model list.
func New() *Catalog {
	return &Catalog{entries: builtin}
}

// NewWithEntries builds a catalog from a caller-supplied list, validating
// the filename invariants. Used by tests and by deployments that override
// the built-in set.
func NewWithEntries(entries []Entry) (*Catalog, error) {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if err := ValidateFilename(e.Filename); err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", e.Name, err)
		}
		if seen[e.Filename] {
			return nil, fmt.Errorf("catalog entry %q: duplicate filename %q", e.Name, e.Filename)
		}
		seen[e.Filename] = true
	}
	return &Catalog{entries: entries}, nil
}

// List returns every entry. The result is a copy; callers cannot mutate the
// catalog through it.
func (c *Catalog) List() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Lookup finds the entry whose filename matches exactly.
func (c *Catalog) Lookup(filename string) (Entry, bool) {
	for _, e := range c.entries {
		if e.Filename == filename {
			return e, true
		}
	}
	return Entry{}, false
}

// Default returns the entry recommended for first-time setup.
func (c *Catalog) Default() Entry {
	return c.entries[0]
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// ValidateFilename rejects names that could escape the model directory when
// joined to it. Filenames are used verbatim as on-disk names.
func ValidateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename is empty")
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("filename %q contains a path separator", name)
	}
	if name == "." || name == ".." || strings.Contains(name, "..") {
		return fmt.Errorf("filename %q contains a traversal sequence", name)
	}
	return nil
}
