// Package i18n provides localized message lookup backed by embedded
// per-locale catalogs.
package i18n

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
)

// ErrMessageNotFound is returned when a key or locale is absent from the
// catalogs. The response that needed the message fails visibly; conversation
// state is never touched.
var ErrMessageNotFound = errors.New("message not found")

//go:embed locales/*.json
var embeddedLocaleFS embed.FS

// Bundle holds all loaded locale catalogs plus the supported-locale policy.
type Bundle struct {
	defaultLocale string
	supported     []string
	matcher       language.Matcher
	catalogs      map[string]map[string]string
}

// Load reads the embedded catalogs and configures the supported set.
// The default locale must be in the supported set and have a catalog.
func Load(defaultLocale string, supported []string) (*Bundle, error) {
	return LoadFromFS(embeddedLocaleFS, defaultLocale, supported)
}

// LoadFromFS loads locale catalogs from the provided filesystem.
func LoadFromFS(localeFS fs.FS, defaultLocale string, supported []string) (*Bundle, error) {
	if len(supported) == 0 {
		return nil, fmt.Errorf("supported locale set is empty")
	}

	catalogs := make(map[string]map[string]string)
	paths, err := fs.Glob(localeFS, "locales/*.json")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	for _, path := range paths {
		data, err := fs.ReadFile(localeFS, path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		messages := make(map[string]string)
		if err := json.Unmarshal(data, &messages); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
		locale := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		catalogs[locale] = messages
	}

	tags := make([]language.Tag, 0, len(supported))
	for _, locale := range supported {
		tag, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("invalid supported locale %q: %w", locale, err)
		}
		if _, ok := catalogs[locale]; !ok {
			return nil, fmt.Errorf("supported locale %q has no catalog", locale)
		}
		tags = append(tags, tag)
	}

	if !contains(supported, defaultLocale) {
		return nil, fmt.Errorf("default locale %q is not in the supported set", defaultLocale)
	}

	return &Bundle{
		defaultLocale: defaultLocale,
		supported:     supported,
		matcher:       language.NewMatcher(tags),
		catalogs:      catalogs,
	}, nil
}

// DefaultLocale returns the process-wide default locale.
func (b *Bundle) DefaultLocale() string {
	return b.defaultLocale
}

// Supported reports whether locale is in the configured supported set.
func (b *Bundle) Supported(locale string) bool {
	return contains(b.supported, locale)
}

// Normalize maps a client locale hint onto the supported set, falling back
// to the default locale when the hint is absent or matches nothing.
func (b *Bundle) Normalize(hint string) string {
	if hint == "" {
		return b.defaultLocale
	}
	if b.Supported(hint) {
		return hint
	}
	tag, err := language.Parse(hint)
	if err != nil {
		return b.defaultLocale
	}
	_, index, confidence := b.matcher.Match(tag)
	if confidence == language.No {
		return b.defaultLocale
	}
	return b.supported[index]
}

// Message returns the catalog text for key in the given locale.
func (b *Bundle) Message(key, locale string) (string, error) {
	messages, ok := b.catalogs[locale]
	if !ok {
		return "", fmt.Errorf("locale %q: %w", locale, ErrMessageNotFound)
	}
	text, ok := messages[key]
	if !ok {
		return "", fmt.Errorf("key %q in locale %q: %w", key, locale, ErrMessageNotFound)
	}
	return text, nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
