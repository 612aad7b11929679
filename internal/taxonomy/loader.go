package taxonomy

import (
	"fmt"
	"io"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxTaxonomyFileSize = 1024 * 1024 // 1MB

// fileTaxonomy is the YAML shape of a taxonomy file.
//
//	version: clinic-2026-08
//	tiers:
//	  immediate:
//	    - kill myself
//	  severe:
//	    - can't go on
type fileTaxonomy struct {
	Version string              `koanf:"version"`
	Tiers   map[string][]string `koanf:"tiers"`
}

// Load reads a taxonomy from a YAML file. The result is normalized
// (lower-cased phrases) and validated; any failure here should abort
// startup.
func Load(path string) (*Taxonomy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening taxonomy file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat taxonomy file: %w", err)
	}
	if info.Size() > maxTaxonomyFileSize {
		return nil, fmt.Errorf("taxonomy file too large: %d bytes (max %d)", info.Size(), maxTaxonomyFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading taxonomy file: %w", err)
	}

	return Parse(content)
}

// Parse loads a taxonomy from raw YAML bytes.
func Parse(content []byte) (*Taxonomy, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parsing taxonomy yaml: %w", err)
	}

	var ft fileTaxonomy
	if err := k.Unmarshal("", &ft); err != nil {
		return nil, fmt.Errorf("unmarshaling taxonomy: %w", err)
	}

	t := &Taxonomy{
		Version: ft.Version,
		Tiers:   make(map[Tier][]string, len(ft.Tiers)),
	}
	for name, phrases := range ft.Tiers {
		t.Tiers[Tier(name)] = phrases
	}
	t.normalize()

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid taxonomy: %w", err)
	}

	return t, nil
}
