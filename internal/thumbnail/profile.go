package thumbnail

import (
	"strings"

	"github.com/disintegration/imaging"

	"photo-catalog/internal/config"
	"photo-catalog/internal/logging"
)

// Method selects the derivation strategy.
type Method string

const (
	MethodRawpyFull        Method = "rawpy_full"
	MethodHighQuality      Method = "high_quality"
	MethodPreviewOptimized Method = "preview_optimized"
	MethodFastThumbnail    Method = "fast_thumbnail"
)

// Resampling names the resize filter.
type Resampling string

const (
	ResampleLanczos  Resampling = "LANCZOS"
	ResampleBilinear Resampling = "BILINEAR"
	ResampleBicubic  Resampling = "BICUBIC"
	ResampleNearest  Resampling = "NEAREST"
)

// Profile is a named optimization profile: how large, how carefully and
// through which strategy a thumbnail is derived.
type Profile struct {
	Name       string
	TargetSize int // longest side bound, pixels
	Quality    int // lossy re-encode hint
	Method     Method
	Resampling Resampling
	Upscale    bool
}

// builtinProfiles are the hardcoded defaults. Configuration can
// override any field of any profile; unlisted profiles fall back to
// "default".
var builtinProfiles = map[string]Profile{
	"llm_vision":             {TargetSize: 1024, Quality: 85, Method: MethodHighQuality, Resampling: ResampleLanczos},
	"clip_embedding":         {TargetSize: 336, Quality: 90, Method: MethodPreviewOptimized, Resampling: ResampleBicubic},
	"dinov2_embedding":       {TargetSize: 518, Quality: 90, Method: MethodPreviewOptimized, Resampling: ResampleBicubic},
	"bioclip_classification": {TargetSize: 336, Quality: 90, Method: MethodPreviewOptimized, Resampling: ResampleBicubic},
	"aesthetic_score":        {TargetSize: 448, Quality: 85, Method: MethodPreviewOptimized, Resampling: ResampleBilinear},
	"technical_score":        {TargetSize: 1024, Quality: 95, Method: MethodHighQuality, Resampling: ResampleLanczos},
	"ai_processing":          {TargetSize: 768, Quality: 85, Method: MethodPreviewOptimized, Resampling: ResampleBicubic},
	"gallery_display":        {TargetSize: 1600, Quality: 88, Method: MethodHighQuality, Resampling: ResampleLanczos},
	"metadata_extraction":    {TargetSize: 256, Quality: 75, Method: MethodFastThumbnail, Resampling: ResampleNearest},
	"default":                {TargetSize: 800, Quality: 85, Method: MethodPreviewOptimized, Resampling: ResampleLanczos},
}

// Profiles merges configuration overrides onto the built-in profiles.
// Overrides for unknown profile names create new profiles seeded from
// "default".
func Profiles(opt config.ImageOptimization) map[string]Profile {
	out := make(map[string]Profile, len(builtinProfiles))
	for name, p := range builtinProfiles {
		p.Name = name
		out[name] = p
	}
	if !opt.Enabled {
		return out
	}

	for name, ov := range opt.Profiles {
		p, ok := out[name]
		if !ok {
			p = out["default"]
			p.Name = name
		}
		if ov.TargetSize != nil && *ov.TargetSize > 0 {
			p.TargetSize = *ov.TargetSize
		}
		if ov.Quality != nil && *ov.Quality > 0 {
			p.Quality = *ov.Quality
		}
		if ov.Method != nil {
			if m := Method(*ov.Method); validMethod(m) {
				p.Method = m
			} else {
				logging.Warn("profile %s: unknown method %q ignored", name, *ov.Method)
			}
		}
		if ov.Resampling != nil {
			if r := Resampling(strings.ToUpper(*ov.Resampling)); validResampling(r) {
				p.Resampling = r
			} else {
				logging.Warn("profile %s: unknown resampling %q ignored", name, *ov.Resampling)
			}
		}
		if ov.Upscale != nil {
			p.Upscale = *ov.Upscale
		}
		out[name] = p
	}
	return out
}

func validMethod(m Method) bool {
	switch m {
	case MethodRawpyFull, MethodHighQuality, MethodPreviewOptimized, MethodFastThumbnail:
		return true
	}
	return false
}

func validResampling(r Resampling) bool {
	switch r {
	case ResampleLanczos, ResampleBilinear, ResampleBicubic, ResampleNearest:
		return true
	}
	return false
}

// filter maps the profile's resampling name to an imaging filter.
func (p Profile) filter() imaging.ResampleFilter {
	switch p.Resampling {
	case ResampleBilinear:
		return imaging.Linear
	case ResampleBicubic:
		return imaging.CatmullRom
	case ResampleNearest:
		return imaging.NearestNeighbor
	default:
		return imaging.Lanczos
	}
}

// minAcceptableSide is the sufficiency bound for RAW preview
// extraction: higher-fidelity methods demand larger previews.
func (p Profile) minAcceptableSide() int {
	if p.Method == MethodHighQuality || p.Method == MethodRawpyFull {
		return 400
	}
	return 300
}
