// Package strategy picks how a page is prepared and prompted for extraction,
// from its measured quality and, on the second pass, the reason the first
// pass failed.
package strategy

import (
	"math"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/imageproc"
)

// Plan is everything the pipeline needs to run one extraction attempt.
type Plan struct {
	Pass        constants.Pass
	Strategy    constants.Strategy
	Category    constants.ErrorCategory // second pass only
	Recipe      imageproc.Recipe
	Deskew      bool
	UseZones    bool
	Temperature float32
}

var recipes = map[constants.Strategy]imageproc.Recipe{
	constants.StrategyStandard:         {},
	constants.StrategyHighQuality:      {},
	constants.StrategyEnhancedContrast: {Contrast: 1.5, Sharpen: true},
	constants.StrategyZoneBased:        {Brightness: 1.1},
	constants.StrategyUltraEnhanced:    {Contrast: 2.0, Brightness: 1.2, Sharpen: true, EdgeEnhance: true},
}

var byCategory = map[constants.ErrorCategory]constants.Strategy{
	constants.CategoryNoServiceLines:      constants.StrategyZoneBased,
	constants.CategoryMissingPatientInfo:  constants.StrategyZoneBased,
	constants.CategoryMissingBillingInfo:  constants.StrategyZoneBased,
	constants.CategoryInvalidCPT:          constants.StrategyEnhancedContrast,
	constants.CategoryDateFormatError:     constants.StrategyEnhancedContrast,
	constants.CategoryTotalChargeMismatch: constants.StrategyUltraEnhanced,
	constants.CategoryImageQuality:        constants.StrategyUltraEnhanced,
	constants.CategoryUnknown:             constants.StrategyUltraEnhanced,
	constants.CategoryAPIError:            constants.StrategyStandard,
}

// RecipeFor returns the image adjustments of s.
func RecipeFor(s constants.Strategy) imageproc.Recipe {
	return recipes[s]
}

// ForFirstPass maps a quality tier to a strategy.
func ForFirstPass(tier constants.QualityTier) constants.Strategy {
	switch tier {
	case constants.QualityPoor:
		return constants.StrategyEnhancedContrast
	case constants.QualityExcellent:
		return constants.StrategyHighQuality
	default:
		return constants.StrategyStandard
	}
}

// ForSecondPass maps an error category to a strategy; poor pages always get
// the strongest enhancement.
func ForSecondPass(category constants.ErrorCategory, tier constants.QualityTier) constants.Strategy {
	if tier == constants.QualityPoor {
		return constants.StrategyUltraEnhanced
	}
	if s, ok := byCategory[category]; ok {
		return s
	}
	return constants.StrategyUltraEnhanced
}

// Select builds the plan for pass from the page metrics and the bill's last error.
func Select(pass constants.Pass, m imageproc.Metrics, lastError string) Plan {
	p := Plan{Pass: pass}
	if pass == constants.SecondPass {
		p.Category = Classify(lastError)
		p.Strategy = ForSecondPass(p.Category, m.Tier)
		p.Deskew = math.Abs(m.Skew) > constants.DeskewThresholdDegrees
		p.Temperature = 0.1
	} else {
		p.Strategy = ForFirstPass(m.Tier)
	}
	p.Recipe = RecipeFor(p.Strategy)
	p.UseZones = p.Strategy == constants.StrategyZoneBased
	return p
}

// Zoom returns the render scale for pass.
func Zoom(pass constants.Pass) float64 {
	if pass == constants.SecondPass {
		return constants.SecondPassZoom
	}
	return constants.FirstPassZoom
}
