package i18n

import (
	"embed"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

const FallbackLocale = "en"

// Translator looks up user-facing strings in per-locale tables.
type Translator struct {
	tables        map[string]map[string]string
	defaultLocale string
}

// New loads the embedded locale tables. defaultLocale is used when a caller
// does not ask for a supported locale.
func New(defaultLocale string) (*Translator, error) {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, err
	}

	tables := make(map[string]map[string]string, len(entries))
	for _, entry := range entries {
		raw, err := localeFS.ReadFile(path.Join("locales", entry.Name()))
		if err != nil {
			return nil, err
		}
		table := map[string]string{}
		if err := yaml.Unmarshal(raw, &table); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", entry.Name(), err)
		}
		tables[strings.TrimSuffix(entry.Name(), ".yaml")] = table
	}

	if _, ok := tables[defaultLocale]; !ok {
		defaultLocale = FallbackLocale
	}
	return &Translator{tables: tables, defaultLocale: defaultLocale}, nil
}

// MustNew is New for static setup where the embedded tables cannot be broken.
func MustNew(defaultLocale string) *Translator {
	tr, err := New(defaultLocale)
	if err != nil {
		panic(err)
	}
	return tr
}

func (tr *Translator) DefaultLocale() string {
	return tr.defaultLocale
}

// Supported reports whether a table exists for locale.
func (tr *Translator) Supported(locale string) bool {
	_, ok := tr.tables[locale]
	return ok
}

// Match picks the first supported language of an Accept-Language header,
// falling back to the default locale.
func (tr *Translator) Match(acceptLanguage string) string {
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		base := strings.ToLower(strings.SplitN(tag, "-", 2)[0])
		if tr.Supported(base) {
			return base
		}
	}
	return tr.defaultLocale
}

// T translates key for locale, replacing {{name}} placeholders from vars.
// Missing keys fall back to the default locale, then English, then the key.
func (tr *Translator) T(locale, key string, vars map[string]string) string {
	text, ok := tr.lookup(locale, key)
	if !ok {
		text, ok = tr.lookup(tr.defaultLocale, key)
	}
	if !ok {
		text, ok = tr.lookup(FallbackLocale, key)
	}
	if !ok {
		return key
	}
	for name, value := range vars {
		text = strings.ReplaceAll(text, "{{"+name+"}}", value)
	}
	return text
}

func (tr *Translator) lookup(locale, key string) (string, bool) {
	table, ok := tr.tables[locale]
	if !ok {
		return "", false
	}
	text, ok := table[key]
	return text, ok
}
