package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amd-agi/genforge/internal/apierrors"
	"github.com/amd-agi/genforge/internal/argsvector"
	"github.com/amd-agi/genforge/internal/taskcoordinator"
)

// loraRequest is one posted LoRA slot selection (spec §4.A).
type loraRequest struct {
	Enabled bool    `json:"enabled"`
	Name    string  `json:"name"`
	Weight  float64 `json:"weight"`
}

// generateRequest is the posted body of POST /generate (spec §4.A field
// list, §6). Every field is optional: argsvector.Build applies a typed
// default to anything absent.
type generateRequest struct {
	GenerateImageGrid bool          `json:"generate_image_grid"`
	Prompt            string        `json:"prompt"`
	NegativePrompt    string        `json:"negative_prompt"`
	StyleSelections   []string      `json:"style_selections"`
	Performance       string        `json:"performance_selection"`
	AspectRatio       string        `json:"aspect_ratios_selection"`
	ImageNumber       int           `json:"image_number"`
	OutputFormat      string        `json:"output_format"`
	Seed              int64         `json:"image_seed"`
	SeedRandom        bool          `json:"seed_random"`
	Sharpness         float64       `json:"sharpness"`
	GuidanceScale     float64       `json:"guidance_scale"`
	BaseModel         string        `json:"base_model"`
	RefinerModel      string        `json:"refiner_model"`
	RefinerSwitch     float64       `json:"refiner_switch"`
	Sampler           string        `json:"sampler_name"`
	Scheduler         string        `json:"scheduler_name"`
	Vae               string        `json:"vae_name"`
	ClipSkip          int           `json:"clip_skip"`
	Loras             []loraRequest `json:"loras"`

	AdaptiveCfg          float64 `json:"adaptive_cfg"`
	OverwriteStep        int     `json:"overwrite_step"`
	OverwriteSwitch      int     `json:"overwrite_switch"`
	OverwriteWidth       int     `json:"overwrite_width"`
	OverwriteHeight      int     `json:"overwrite_height"`
	DisableSeedIncrement bool    `json:"disable_seed_increment"`
	AdmScalerPositive    float64 `json:"adm_scaler_positive"`
	AdmScalerNegative    float64 `json:"adm_scaler_negative"`
	AdmScalerEnd         float64 `json:"adm_scaler_end"`
	RefinerSwapMethod    string  `json:"refiner_swap_method"`
	ControlnetSoftness   float64 `json:"controlnet_softness"`
	FreeUEnabled         bool    `json:"freeu_enabled"`
	FreeUB1              float64 `json:"freeu_b1"`
	FreeUB2              float64 `json:"freeu_b2"`
	FreeUS1              float64 `json:"freeu_s1"`
	FreeUS2              float64 `json:"freeu_s2"`
	SaveMetadataToImages bool    `json:"save_metadata_to_images"`
	MetadataScheme       string  `json:"metadata_scheme"`
}

func (r generateRequest) toTemplate() argsvector.Request {
	loras := make([]argsvector.LoraSlot, len(r.Loras))
	for i, l := range r.Loras {
		loras[i] = argsvector.LoraSlot{Enabled: l.Enabled, Name: l.Name, Weight: l.Weight}
	}

	return argsvector.Request{
		GenerateImageGrid:    r.GenerateImageGrid,
		Prompt:               r.Prompt,
		NegativePrompt:       r.NegativePrompt,
		Styles:               r.StyleSelections,
		Performance:          r.Performance,
		AspectRatio:          r.AspectRatio,
		OutputFormat:         r.OutputFormat,
		Sharpness:            r.Sharpness,
		GuidanceScale:        r.GuidanceScale,
		BaseModel:            r.BaseModel,
		RefinerModel:         r.RefinerModel,
		RefinerSwitch:        r.RefinerSwitch,
		Sampler:              r.Sampler,
		Scheduler:            r.Scheduler,
		Vae:                  r.Vae,
		ClipSkip:             r.ClipSkip,
		Loras:                loras,
		AdaptiveCfg:          r.AdaptiveCfg,
		OverwriteStep:        r.OverwriteStep,
		OverwriteSwitch:      r.OverwriteSwitch,
		OverwriteWidth:       r.OverwriteWidth,
		OverwriteHeight:      r.OverwriteHeight,
		DisableSeedIncrement: r.DisableSeedIncrement,
		AdmScalerPositive:    r.AdmScalerPositive,
		AdmScalerNegative:    r.AdmScalerNegative,
		AdmScalerEnd:         r.AdmScalerEnd,
		RefinerSwapMethod:    r.RefinerSwapMethod,
		ControlnetSoftness:   r.ControlnetSoftness,
		FreeUEnabled:         r.FreeUEnabled,
		FreeUB1:              r.FreeUB1,
		FreeUB2:              r.FreeUB2,
		FreeUS1:              r.FreeUS1,
		FreeUS2:              r.FreeUS2,
		SaveMetadataToImages: r.SaveMetadataToImages,
		MetadataScheme:       r.MetadataScheme,
	}
}

type generateResponse struct {
	TaskID      string                         `json:"task_id"`
	Status      string                         `json:"status"`
	Gpus        []taskcoordinator.GpuAssignment `json:"gpus,omitempty"`
	TotalImages int                            `json:"total_images,omitempty"`
	Error       string                         `json:"error,omitempty"`
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apierrors.New().
			WithCode(apierrors.RequestParameterInvalid).
			WithMessagef("malformed generate request body").
			WithError(err))
		return
	}
	if req.ImageNumber <= 0 {
		req.ImageNumber = 1
	}

	task, err := s.Coordinator.Submit(taskcoordinator.Request{
		Template:    req.toTemplate(),
		TotalImages: req.ImageNumber,
		Seed:        req.Seed,
		SeedRandom:  req.SeedRandom,
	})
	if err != nil {
		appErr, ok := err.(*apierrors.Error)
		message := err.Error()
		if ok {
			message = appErr.Message
		}
		c.JSON(http.StatusOK, generateResponse{TaskID: task.ID, Status: "Error", Error: message})
		return
	}

	snap := task.Snapshot()
	c.JSON(http.StatusOK, generateResponse{
		TaskID:      task.ID,
		Status:      "Started",
		Gpus:        snap.Assignments,
		TotalImages: task.TotalImages,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	taskID := c.Param("taskId")

	task, ok := s.Coordinator.GetTask(taskID)
	if !ok {
		c.Error(apierrors.New().
			WithCode(apierrors.RequestDataNotFound).
			WithMessagef("unknown task %q", taskID))
		return
	}

	c.JSON(http.StatusOK, task.Snapshot())
}

type stopResponse struct {
	Requested int `json:"requested"`
	Success   int `json:"success"`
}

func (s *Server) handleStop(c *gin.Context) {
	requested, succeeded := s.Coordinator.CancelAll()
	c.JSON(http.StatusOK, stopResponse{Requested: requested, Success: succeeded})
}
