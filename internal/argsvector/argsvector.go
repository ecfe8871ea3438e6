// Package argsvector builds and validates the positional argument vector
// the orchestrator hands to an inference worker over JSON-RPC (spec §4.A,
// §6). The index -> (type, meaning, default) table below is the single
// source of truth the builder and the validator both walk, per the design
// note in spec §9.
package argsvector

import (
	"strings"

	"github.com/amd-agi/genforge/internal/apierrors"
)

// ContractVersion is bumped whenever an index or its semantics changes.
const ContractVersion = 1

// ExpectedLength is the fixed positional length of the contract.
const ExpectedLength = 152

const (
	LoraSlotCount = 5
	loraBaseIndex = 15
	loraStride    = 3

	controlNetBaseIndex = 52
	controlNetSlots     = 4
	controlNetStride    = 4

	enhanceControlBaseIndex = 68
	enhanceControlSlots     = 8

	enhanceTabBaseIndex  = 76
	enhanceTabCount      = 3
	enhanceTabFieldCount = 16

	reservedBaseIndex = 124
)

// LoraSlot is one of the fixed 5 LoRA selections (spec §4.A).
type LoraSlot struct {
	Enabled bool
	Name    string
	Weight  float64
}

// Request carries the user-facing fields translated into an ArgsVector.
// Fields left zero-valued fall back to their typed default in Build.
type Request struct {
	GenerateImageGrid bool
	Prompt            string
	NegativePrompt    string
	Styles            []string
	Performance       string
	AspectRatio       string
	ImageNumber       int
	OutputFormat      string
	Seed              int64
	SeedRandom        bool
	Sharpness         float64
	GuidanceScale     float64
	BaseModel         string
	RefinerModel      string
	RefinerSwitch     float64

	Sampler   string
	Scheduler string
	Vae       string
	ClipSkip  int

	Loras []LoraSlot

	AdaptiveCfg          float64
	OverwriteStep        int
	OverwriteSwitch      int
	OverwriteWidth       int
	OverwriteHeight      int
	DisableSeedIncrement bool
	AdmScalerPositive    float64
	AdmScalerNegative    float64
	AdmScalerEnd         float64
	RefinerSwapMethod    string
	ControlnetSoftness   float64
	FreeUEnabled         bool
	FreeUB1              float64
	FreeUB2              float64
	FreeUS1              float64
	FreeUS2              float64
	SaveMetadataToImages bool
	MetadataScheme       string
}

var refinerSwapMethods = map[string]bool{"joint": true, "separate": true, "vae": true}
var metadataSchemes = map[string]bool{"fooocus": true, "a1111": true}

// Build translates req into a fixed-length, contract-versioned ArgsVector.
// Construction never fails: every absent or wrongly-typed field falls back
// to its compile-time default (spec §4.A "Failure semantics").
func Build(req Request) []interface{} {
	vec := make([]interface{}, ExpectedLength)

	vec[0] = req.GenerateImageGrid
	vec[1] = req.Prompt
	vec[2] = req.NegativePrompt
	vec[3] = copyStyles(req.Styles)
	vec[4] = stringOr(req.Performance, "Speed")
	vec[5] = normalizeAspectRatio(stringOr(req.AspectRatio, "1152×896"))
	vec[6] = intOr(req.ImageNumber, 1)
	vec[7] = stringOr(req.OutputFormat, "png")
	vec[8] = req.Seed
	vec[9] = req.SeedRandom
	vec[10] = floatOr(req.Sharpness, 2.0)
	vec[11] = floatOr(req.GuidanceScale, 4.0)
	vec[12] = stringOr(req.BaseModel, "None")
	vec[13] = stringOr(req.RefinerModel, "None")
	vec[14] = floatOr(req.RefinerSwitch, 0.8)

	writeLoras(vec, req.Loras)

	vec[30] = stringOr(req.Sampler, "dpmpp_2m_sde_gpu")
	vec[31] = stringOr(req.Scheduler, "karras")
	vec[32] = stringOr(req.Vae, "Default (model)")
	vec[33] = intOr(req.ClipSkip, 2)
	vec[34] = floatOr(req.AdaptiveCfg, 7.0)
	vec[35] = intOrNegativeOne(req.OverwriteStep)
	vec[36] = intOrNegativeOne(req.OverwriteSwitch)
	vec[37] = intOrNegativeOne(req.OverwriteWidth)
	vec[38] = intOrNegativeOne(req.OverwriteHeight)
	vec[39] = req.DisableSeedIncrement
	vec[40] = floatOr(req.AdmScalerPositive, 1.5)
	vec[41] = floatOr(req.AdmScalerNegative, 0.8)
	vec[42] = floatOr(req.AdmScalerEnd, 0.3)
	vec[43] = enumOr(req.RefinerSwapMethod, refinerSwapMethods, "joint")
	vec[44] = floatOr(req.ControlnetSoftness, 0.25)
	vec[45] = req.FreeUEnabled
	vec[46] = floatOr(req.FreeUB1, 1.01)
	vec[47] = floatOr(req.FreeUB2, 1.02)
	vec[48] = floatOr(req.FreeUS1, 0.99)
	vec[49] = floatOr(req.FreeUS2, 0.95)
	vec[50] = req.SaveMetadataToImages
	vec[51] = enumOr(req.MetadataScheme, metadataSchemes, "fooocus")

	writeControlNetBlock(vec)
	writeEnhanceControlBlock(vec)
	writeEnhanceTabBlock(vec)
	writeReservedBlock(vec)

	return vec
}

// Validate checks an inbound ArgsVector against the positional contract.
// It runs on both the producer (defensive) and consumer (worker) side.
func Validate(vec []interface{}) error {
	if len(vec) != ExpectedLength {
		return apierrors.New().
			WithCode(apierrors.ContractMismatch).
			WithMessagef("args vector length %d, expected %d", len(vec), ExpectedLength)
	}

	boolIdx := []int{0, 9}
	stringIdx := []int{1, 2, 4, 5, 7, 12, 13}
	numberIdx := []int{6, 8, 10, 11, 14}

	for _, i := range boolIdx {
		if _, ok := vec[i].(bool); !ok {
			return typeErr(i, "bool")
		}
	}
	for _, i := range stringIdx {
		if _, ok := vec[i].(string); !ok {
			return typeErr(i, "string")
		}
	}
	for _, i := range numberIdx {
		if !isNumber(vec[i]) {
			return typeErr(i, "number")
		}
	}
	if !isStringSlice(vec[3]) {
		return typeErr(3, "[]string")
	}

	return nil
}

func typeErr(index int, wantType string) error {
	return apierrors.New().
		WithCode(apierrors.ContractMismatch).
		WithMessagef("args vector index %d must be %s", index, wantType)
}

func writeLoras(vec []interface{}, loras []LoraSlot) {
	for i := 0; i < LoraSlotCount; i++ {
		base := loraBaseIndex + i*loraStride
		if i < len(loras) {
			l := loras[i]
			vec[base] = l.Enabled
			vec[base+1] = stringOr(l.Name, "None")
			vec[base+2] = floatOr(l.Weight, 1.0)
			continue
		}
		vec[base] = false
		vec[base+1] = "None"
		vec[base+2] = 1.0
	}
}

func writeControlNetBlock(vec []interface{}) {
	for i := 0; i < controlNetSlots; i++ {
		base := controlNetBaseIndex + i*controlNetStride
		vec[base] = nil
		vec[base+1] = 1.0
		vec[base+2] = 1.0
		vec[base+3] = "ImagePrompt"
	}
}

// writeEnhanceControlBlock fills the 8 shared enhancement-control defaults
// (spec §4.A "8-slot enhancement-control block"); these are never driven by
// user input.
func writeEnhanceControlBlock(vec []interface{}) {
	defaults := []interface{}{
		false,            // enhance_enabled
		"Before First Enhancement", // enhance_uov_method
		"Default",        // enhance_uov_processing_order
		"original prompts", // enhance_uov_prompt_type
		"",               // enhance_mask_dino_prompt
		false,            // enhance_inpaint_disable_initial_latent
		"v2.6",           // enhance_inpaint_engine
		1.0,              // enhance_inpaint_strength
	}
	copy(vec[enhanceControlBaseIndex:enhanceControlBaseIndex+enhanceControlSlots], defaults)
}

// writeEnhanceTabBlock fills the 3-tab enhancement block, 16 compile-time
// default entries per tab (spec §4.A).
func writeEnhanceTabBlock(vec []interface{}) {
	tabDefaults := []interface{}{
		false, "", "", "", "",
		"Enhance", "u2net", "full", "vit_b",
		0.25, 0.3, 0,
		false, "v2.6", 1.0, 0.618,
	}
	for t := 0; t < enhanceTabCount; t++ {
		base := enhanceTabBaseIndex + t*enhanceTabFieldCount
		copy(vec[base:base+enhanceTabFieldCount], tabDefaults)
	}
}

// writeReservedBlock pads the trailing contract slots that no named field
// (spec or original source) occupies, so that ExpectedLength holds exactly.
// Reserved for future positional contract growth; changing their meaning
// requires bumping ContractVersion like any other index.
func writeReservedBlock(vec []interface{}) {
	for i := reservedBaseIndex; i < ExpectedLength; i++ {
		vec[i] = 0.0
	}
}

func normalizeAspectRatio(raw string) string {
	replacer := strings.NewReplacer("x", "×", "X", "×", "*", "×")
	return replacer.Replace(raw)
}

func copyStyles(styles []string) []string {
	out := make([]string, len(styles))
	copy(out, styles)
	return out
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func intOrNegativeOne(v int) int {
	if v == 0 {
		return -1
	}
	return v
}

func floatOr(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func enumOr(v string, set map[string]bool, def string) string {
	if set[v] {
		return v
	}
	return def
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}

func isStringSlice(v interface{}) bool {
	switch s := v.(type) {
	case []string:
		return true
	case []interface{}:
		for _, e := range s {
			if _, ok := e.(string); !ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}
