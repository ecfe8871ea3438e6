// Package catalog enumerates the filesystem directories (checkpoints,
// LoRA, VAE, styles, presets) the UI needs to populate its controls,
// producing a CatalogSnapshot recomputed fresh on every call (spec §4.G,
// §9 "Catalog freshness").
package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/amd-agi/genforge/internal/argsvector"
	"github.com/amd-agi/genforge/internal/config"
	"github.com/amd-agi/genforge/internal/logger/log"
)

// Style is one prompt-expansion style entry (spec §4.G).
type Style struct {
	Name           string `json:"name"`
	Prompt         string `json:"prompt,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
}

// Snapshot is the exact payload documented in spec §6.
type Snapshot struct {
	Models             []string `json:"models"`
	Loras              []string `json:"loras"`
	Vaes               []string `json:"vaes"`
	Presets            []string `json:"presets"`
	Styles             []Style  `json:"styles"`
	AspectRatios       []string `json:"aspect_ratios"`
	PerformanceOptions []string `json:"performance_options"`
	Samplers           []string `json:"samplers"`
	Schedulers         []string `json:"schedulers"`
	OutputFormats      []string `json:"output_formats"`
	ClipSkipMax        int      `json:"clip_skip_max"`
	DefaultLoraCount   int      `json:"default_lora_count"`
	RefinerSwapMethods []string `json:"refiner_swap_methods"`
	MetadataSchemes    []string `json:"metadata_schemes"`
}

const clipSkipMax = 12

var (
	aspectRatios       = []string{"704×1408", "832×1216", "960×1088", "1024×1024", "1088×960", "1216×832", "1344×768", "1408×704"}
	performanceOptions = []string{"Quality", "Speed", "Extreme Speed", "Lightning"}
	samplers           = []string{"dpmpp_2m_sde_gpu", "dpmpp_2m_sde", "dpmpp_3m_sde_gpu", "euler", "euler_ancestral", "dpmpp_2m", "ddim"}
	schedulers         = []string{"karras", "exponential", "sgm_uniform", "simple", "ddim_uniform"}
	outputFormats      = []string{"png", "jpg", "webp"}
	refinerSwapMethods = []string{"joint", "separate", "vae"}
	metadataSchemes    = []string{"fooocus", "a1111"}
)

var pseudoStyles = []Style{
	{Name: "Fooocus V2"},
	{Name: "Random Style"},
}

// Reader builds a Snapshot on demand.
type Reader struct {
	dirs config.CatalogConfig
}

// New constructs a Reader over the directories named in cfg.
func New(cfg config.CatalogConfig) *Reader {
	return &Reader{dirs: cfg}
}

// Build enumerates every configured directory and returns a fresh
// Snapshot. Missing directories yield an empty list rather than an error;
// this mirrors the filesystem-first tolerance the rest of §4.G documents
// for style files.
func (r *Reader) Build() Snapshot {
	return Snapshot{
		Models:             listFileNames(r.dirs.CheckpointsDir),
		Loras:              listFileNames(r.dirs.LorasDir),
		Vaes:               append([]string{"Default (model)"}, listFileNames(r.dirs.VaesDir)...),
		Presets:            listFileNames(r.dirs.PresetsDir),
		Styles:             r.loadStyles(),
		AspectRatios:       aspectRatios,
		PerformanceOptions: performanceOptions,
		Samplers:           samplers,
		Schedulers:         schedulers,
		OutputFormats:      outputFormats,
		ClipSkipMax:        clipSkipMax,
		DefaultLoraCount:   argsvector.LoraSlotCount,
		RefinerSwapMethods: refinerSwapMethods,
		MetadataSchemes:    metadataSchemes,
	}
}

func listFileNames(dir string) []string {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warnf("catalog: cannot read %q: %v", dir, err)
		return nil
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, e.Name())
	}
	return out
}

// loadStyles parses every *.json file in StylesDir, tolerating individual
// file failures (skipped, logged), and appends the two pseudo-styles if
// they are not already present by name (spec §4.G).
func (r *Reader) loadStyles() []Style {
	var styles []Style
	seen := map[string]bool{}

	if r.dirs.StylesDir != "" {
		entries, err := os.ReadDir(r.dirs.StylesDir)
		if err != nil {
			log.Warnf("catalog: cannot read styles dir %q: %v", r.dirs.StylesDir, err)
		} else {
			for _, e := range entries {
				if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
					continue
				}
				parsed, err := parseStyleFile(filepath.Join(r.dirs.StylesDir, e.Name()))
				if err != nil {
					log.Warnf("catalog: skipping style file %q: %v", e.Name(), err)
					continue
				}
				for _, s := range parsed {
					styles = append(styles, s)
					seen[s.Name] = true
				}
			}
		}
	}

	for _, p := range pseudoStyles {
		if !seen[p.Name] {
			styles = append(styles, p)
		}
	}
	return styles
}

func parseStyleFile(path string) ([]Style, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var styles []Style
	if err := json.Unmarshal(data, &styles); err == nil {
		return styles, nil
	}

	var single Style
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []Style{single}, nil
}
