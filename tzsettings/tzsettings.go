// Package tzsettings loads the settings of the pipeline.
//
// Settings come from, in increasing priority: the defaults below, a YAML or JSON file
// (data.json of a plugin directory works as is) and TIKZJAX_* environment variables,
// e.g. TIKZJAX_INVERT_COLORS_IN_DARK_MODE=false or TIKZJAX_RENDER_TIMEOUT=30s.
package tzsettings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "TIKZJAX_"

type Settings struct {
	// InvertColorsInDarkMode maps black and white in rendered diagrams to the text and
	// background colors of the page.
	InvertColorsInDarkMode bool `koanf:"invertColorsInDarkMode"`
	// RenderTimeout fails diagrams the engine has not rendered after this long. Zero
	// waits forever.
	RenderTimeout time.Duration `koanf:"renderTimeout"`
}

func Default() Settings {
	return Settings{
		InvertColorsInDarkMode: true,
	}
}

// Load returns the settings in the file at path overlaid with the environment. A
// missing file, or an empty path, leaves the defaults in place.
func Load(path string) (Settings, error) {
	s := Default()
	k := koanf.New(".")

	if path != "" {
		_, err := os.Stat(path)
		if err == nil {
			// JSON is a subset of YAML.
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return s, fmt.Errorf("failed to read settings %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return s, fmt.Errorf("failed to access settings %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", envKey), nil)
	if err != nil {
		return s, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Unmarshal("", &s); err != nil {
		return s, fmt.Errorf("failed to decode settings: %w", err)
	}
	if s.RenderTimeout < 0 {
		return s, fmt.Errorf("renderTimeout must not be negative: %v", s.RenderTimeout)
	}
	return s, nil
}

// envKey maps TIKZJAX_RENDER_TIMEOUT to renderTimeout.
func envKey(key string) string {
	words := strings.Split(strings.ToLower(strings.TrimPrefix(key, envPrefix)), "_")
	for i := 1; i < len(words); i++ {
		if words[i] == "" {
			continue
		}
		r := []rune(words[i])
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, "")
}
