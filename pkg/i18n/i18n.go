// Package i18n holds the bot's translated messages.
//
// Catalogs are embedded YAML files, one per language, mapping Key to a
// fmt-style template.
package i18n

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/small-frappuccino/modcore/pkg/log"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const Fallback = "en"

var (
	ErrMissingTranslation = errors.New("missing translation")
	ErrUnknownLanguage    = errors.New("unknown language")
)

//go:embed locales/*.yaml
var localeFS embed.FS

var (
	loadOnce sync.Once
	catalogs map[string]map[Key]string
	loadErr  error
)

func load() (map[string]map[Key]string, error) {
	loadOnce.Do(func() {
		entries, err := localeFS.ReadDir("locales")
		if err != nil {
			loadErr = err
			return
		}
		out := make(map[string]map[Key]string, len(entries))
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || path.Ext(name) != ".yaml" {
				continue
			}
			raw, err := localeFS.ReadFile("locales/" + name)
			if err != nil {
				loadErr = err
				return
			}
			var m map[Key]string
			if err := yaml.Unmarshal(raw, &m); err != nil {
				loadErr = fmt.Errorf("parse %s: %w", name, err)
				return
			}
			out[strings.TrimSuffix(name, ".yaml")] = m
		}
		catalogs = out
	})
	return catalogs, loadErr
}

// Languages returns the languages with a catalog, sorted.
func Languages() []string {
	c, _ := load()
	out := make([]string, 0, len(c))
	for l := range c {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// T renders key in lang. Unknown languages and keys return an error rather
// than the raw key.
func T(lang string, key Key, args ...any) (string, error) {
	c, err := load()
	if err != nil {
		return "", err
	}
	cat, ok := c[strings.ToLower(lang)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
	tmpl, ok := cat[key]
	if !ok || tmpl == "" {
		return "", fmt.Errorf("%w: %s/%s", ErrMissingTranslation, lang, key)
	}
	if len(args) == 0 {
		return tmpl, nil
	}
	return fmt.Sprintf(tmpl, args...), nil
}

// Must renders key in lang, falling back to English and finally to the key itself.
func Must(lang string, key Key, args ...any) string {
	s, err := T(lang, key, args...)
	if err == nil {
		return s
	}
	log.ApplicationLogger().Warn("Translation lookup failed", "lang", lang, "key", string(key), "error", err)
	if lang != Fallback {
		if s, err := T(Fallback, key, args...); err == nil {
			return s
		}
	}
	return string(key)
}

// Validate checks every catalog defines every key and no extras.
func Validate() error {
	c, err := load()
	if err != nil {
		return err
	}
	known := make(map[Key]struct{}, len(Keys()))
	for _, k := range Keys() {
		known[k] = struct{}{}
	}
	var errs []error
	for _, lang := range Languages() {
		cat := c[lang]
		for _, k := range Keys() {
			if strings.TrimSpace(cat[k]) == "" {
				errs = append(errs, fmt.Errorf("%w: %s/%s", ErrMissingTranslation, lang, k))
			}
		}
		for k := range cat {
			if _, ok := known[k]; !ok {
				errs = append(errs, fmt.Errorf("unknown key %s/%s", lang, k))
			}
		}
	}
	return errors.Join(errs...)
}

var matcher = language.NewMatcher([]language.Tag{
	language.English, // first entry is the default
	language.French,
	language.Spanish,
})

// Detect maps a Discord locale such as "fr", "es-ES" or "en-US" to a
// supported language, defaulting to English.
func Detect(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return Fallback
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return Fallback
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return Fallback
	}
	switch idx {
	case 1:
		return "fr"
	case 2:
		return "es"
	default:
		return Fallback
	}
}
