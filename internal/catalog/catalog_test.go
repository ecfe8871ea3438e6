package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amd-agi/genforge/internal/argsvector"
	"github.com/amd-agi/genforge/internal/config"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestBuildEnumeratesDirectories(t *testing.T) {
	checkpoints := t.TempDir()
	writeFile(t, checkpoints, "juggernautXL.safetensors", "")
	writeFile(t, checkpoints, "realvis.safetensors", "")

	loras := t.TempDir()
	writeFile(t, loras, "add_detail.safetensors", "")

	vaes := t.TempDir()
	writeFile(t, vaes, "sdxl_vae.safetensors", "")

	r := New(config.CatalogConfig{
		CheckpointsDir: checkpoints,
		LorasDir:       loras,
		VaesDir:        vaes,
	})

	snap := r.Build()
	assert.ElementsMatch(t, []string{"juggernautXL.safetensors", "realvis.safetensors"}, snap.Models)
	assert.Equal(t, []string{"add_detail.safetensors"}, snap.Loras)
	assert.Equal(t, []string{"Default (model)", "sdxl_vae.safetensors"}, snap.Vaes)
}

func TestBuildMissingDirectoriesYieldEmptyLists(t *testing.T) {
	r := New(config.CatalogConfig{CheckpointsDir: filepath.Join(t.TempDir(), "does-not-exist")})
	snap := r.Build()
	assert.Empty(t, snap.Models)
}

func TestBuildAppliesCompileTimeDefaults(t *testing.T) {
	r := New(config.CatalogConfig{})
	snap := r.Build()

	assert.Equal(t, 12, snap.ClipSkipMax)
	assert.Equal(t, argsvector.LoraSlotCount, snap.DefaultLoraCount)
	assert.Equal(t, []string{"joint", "separate", "vae"}, snap.RefinerSwapMethods)
	assert.Equal(t, []string{"fooocus", "a1111"}, snap.MetadataSchemes)
	assert.NotEmpty(t, snap.AspectRatios)
	assert.NotEmpty(t, snap.Samplers)
}

func TestLoadStylesParsesArrayFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "custom.json", `[{"name":"Cinematic","prompt":"cinematic photo"},{"name":"Anime"}]`)

	r := New(config.CatalogConfig{StylesDir: dir})
	snap := r.Build()

	names := styleNames(snap.Styles)
	assert.Contains(t, names, "Cinematic")
	assert.Contains(t, names, "Anime")
	// pseudo-styles are still appended since neither name collides.
	assert.Contains(t, names, "Fooocus V2")
	assert.Contains(t, names, "Random Style")
}

func TestLoadStylesSkipsUnparseableFilesButKeepsOthers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.json", `{not valid json`)
	writeFile(t, dir, "good.json", `{"name":"Fooocus V2"}`)

	r := New(config.CatalogConfig{StylesDir: dir})
	snap := r.Build()

	names := styleNames(snap.Styles)
	assert.Contains(t, names, "Fooocus V2")
	// only one "Fooocus V2" entry: the file's own one, pseudo-style suppressed.
	count := 0
	for _, n := range names {
		if n == "Fooocus V2" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestLoadStylesWithNoStylesDirStillAppendsPseudoStyles(t *testing.T) {
	r := New(config.CatalogConfig{})
	snap := r.Build()
	names := styleNames(snap.Styles)
	assert.ElementsMatch(t, []string{"Fooocus V2", "Random Style"}, names)
}

func styleNames(styles []Style) []string {
	names := make([]string, len(styles))
	for i, s := range styles {
		names[i] = s.Name
	}
	return names
}
