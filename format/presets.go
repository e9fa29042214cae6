// Package format builds freshly-formatted ext2 disk images: the
// superblock, group descriptor, block and inode bitmaps, inode table, and
// the root directory's first data block.
package format

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"
)

// Preset names a predefined disk image geometry: total block count and
// total inode count. Block size is always 1024 bytes (blockio.BlockSize).
type Preset struct {
	Slug        string `csv:"slug"`
	Name        string `csv:"name"`
	TotalBlocks uint32 `csv:"total_blocks"`
	TotalInodes uint32 `csv:"total_inodes"`
	Notes       string `csv:"notes"`
}

//go:embed presets.csv
var presetsRawCSV string

var presets map[string]Preset

func init() {
	presets = map[string]Preset{}
	reader := strings.NewReader(presetsRawCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Preset) error {
		if _, exists := presets[row.Slug]; exists {
			return fmt.Errorf("duplicate preset slug %q", row.Slug)
		}
		presets[row.Slug] = row
		return nil
	})
	if err != nil {
		panic(err)
	}
}

// GetPreset looks up a predefined image geometry by slug (e.g. "tiny",
// "small", "default").
func GetPreset(slug string) (Preset, error) {
	preset, ok := presets[slug]
	if !ok {
		return Preset{}, fmt.Errorf("no predefined image preset named %q", slug)
	}
	return preset, nil
}

// PresetSlugs lists every predefined preset's slug, for help text.
func PresetSlugs() []string {
	slugs := make([]string, 0, len(presets))
	for slug := range presets {
		slugs = append(slugs, slug)
	}
	return slugs
}
