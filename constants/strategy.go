package constants

// Strategy names an image preparation + prompt recipe for extraction.
type Strategy string

const (
	StrategyStandard         Strategy = "standard"
	StrategyHighQuality      Strategy = "high_quality"
	StrategyEnhancedContrast Strategy = "enhanced_contrast"
	StrategyZoneBased        Strategy = "zone_based"
	StrategyUltraEnhanced    Strategy = "ultra_enhanced"
)

// QualityTier is the coarse rating of a rendered page.
type QualityTier string

const (
	QualityExcellent QualityTier = "excellent"
	QualityGood      QualityTier = "good"
	QualityFair      QualityTier = "fair"
	QualityPoor      QualityTier = "poor"
)

// Pass is the extraction attempt number for a bill.
type Pass int

const (
	FirstPass  Pass = 1
	SecondPass Pass = 2
)

// Render zoom per pass; the second pass renders larger.
const (
	FirstPassZoom  = 2.0
	SecondPassZoom = 2.5
)

// DeskewThresholdDegrees is the minimum estimated skew corrected on the second pass.
const DeskewThresholdDegrees = 2.0
