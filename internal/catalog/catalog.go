// Package catalog holds the bilingual cybersafety statements a citizen reads
// aloud, grouped by consent category.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Language is a statement language tag.
type Language string

const (
	English Language = "en"
	Telugu  Language = "te"
)

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	return l == English || l == Telugu
}

// SpeechLocale returns the BCP-47 locale used for speech recognition.
func (l Language) SpeechLocale() string {
	switch l {
	case Telugu:
		return "te-IN"
	default:
		return "en-US"
	}
}

// ParseLanguage validates a language tag.
func ParseLanguage(s string) (Language, error) {
	l := Language(s)
	if !l.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, s)
	}
	return l, nil
}

// Category is a consent category key.
type Category string

const (
	DigitalArrest    Category = "digital-arrest"
	InvestmentFraud  Category = "investment-fraud"
	OtherCybercrimes Category = "other-cybercrimes"
)

var (
	ErrUnknownLanguage = errors.New("unknown language")
	ErrNoStatements    = errors.New("no statements available")
)

// Statement is one sentence the reader must speak. Statements are immutable
// once handed out.
type Statement struct {
	Text     string   `json:"text"`
	Language Language `json:"language"`
	Category Category `json:"category"`
	Index    int      `json:"index"`
}

// CategoryEntry holds the display names and statements of one category.
type CategoryEntry struct {
	Names      map[Language]string   `yaml:"names"`
	Statements map[Language][]string `yaml:"statements"`
}

// Catalog is the full statement table.
type Catalog struct {
	DefaultCategory  Category                   `yaml:"default_category"`
	FallbackLanguage Language                   `yaml:"fallback_language"`
	Categories       map[Category]CategoryEntry `yaml:"categories"`
}

// CategoryInfo describes a category for listing.
type CategoryInfo struct {
	Key            Category            `json:"key"`
	Names          map[Language]string `json:"names"`
	StatementCount map[Language]int    `json:"statementCount"`
}

//go:embed statements.yaml
var defaultYAML []byte

var loadDefault = sync.OnceValue(func() *Catalog {
	c, err := parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded statements invalid: %v", err))
	}
	return c
})

// Default returns the embedded catalog.
func Default() *Catalog {
	return loadDefault()
}

// Load reads and validates the YAML catalog at path.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %q: %w", path, err)
	}
	defer f.Close()

	c, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse %q: %w", path, err)
	}
	return c, nil
}

// LoadFromReader decodes and validates a YAML catalog.
func LoadFromReader(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("catalog: read: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Catalog, error) {
	c := &Catalog{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("catalog: decode yaml: %w", err)
	}
	if c.FallbackLanguage == "" {
		c.FallbackLanguage = English
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that every category has statements in known languages and
// that the default category exists.
func (c *Catalog) Validate() error {
	var errs []error

	if len(c.Categories) == 0 {
		errs = append(errs, errors.New("catalog: no categories defined"))
	}
	if _, ok := c.Categories[c.DefaultCategory]; !ok {
		errs = append(errs, fmt.Errorf("catalog: default_category %q not defined", c.DefaultCategory))
	}
	if !c.FallbackLanguage.Valid() {
		errs = append(errs, fmt.Errorf("catalog: fallback_language: %w: %q", ErrUnknownLanguage, c.FallbackLanguage))
	}

	for key, entry := range c.Categories {
		if len(entry.Statements) == 0 {
			errs = append(errs, fmt.Errorf("catalog: category %q: %w", key, ErrNoStatements))
		}
		for lang, list := range entry.Statements {
			if !lang.Valid() {
				errs = append(errs, fmt.Errorf("catalog: category %q: %w: %q", key, ErrUnknownLanguage, lang))
			}
			if len(list) == 0 {
				errs = append(errs, fmt.Errorf("catalog: category %q language %q: %w", key, lang, ErrNoStatements))
			}
			for i, text := range list {
				if text == "" {
					errs = append(errs, fmt.Errorf("catalog: category %q language %q statement %d is empty", key, lang, i))
				}
			}
		}
	}

	return errors.Join(errs...)
}

// Statements returns the ordered statements for category and language.
// Unknown categories fall back to the default category, and a missing
// language falls back to the catalog's fallback language.
func (c *Catalog) Statements(category Category, lang Language) ([]Statement, error) {
	if !lang.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}

	entry, ok := c.Categories[category]
	if !ok || len(entry.Statements[lang]) == 0 {
		category = c.DefaultCategory
		entry = c.Categories[category]
	}

	list := entry.Statements[lang]
	if len(list) == 0 {
		lang = c.FallbackLanguage
		list = entry.Statements[lang]
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: category %q", ErrNoStatements, category)
	}

	out := make([]Statement, len(list))
	for i, text := range list {
		out[i] = Statement{Text: text, Language: lang, Category: category, Index: i}
	}
	return out, nil
}

// List returns every category sorted by key.
func (c *Catalog) List() []CategoryInfo {
	keys := make([]Category, 0, len(c.Categories))
	for k := range c.Categories {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]CategoryInfo, 0, len(keys))
	for _, k := range keys {
		entry := c.Categories[k]
		counts := make(map[Language]int, len(entry.Statements))
		for lang, list := range entry.Statements {
			counts[lang] = len(list)
		}
		out = append(out, CategoryInfo{Key: k, Names: entry.Names, StatementCount: counts})
	}
	return out
}
