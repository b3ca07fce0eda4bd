package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/imageproc"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want constants.ErrorCategory
	}{
		{"", constants.CategoryUnknown},
		{"No service lines extracted", constants.CategoryNoServiceLines},
		{"Invalid CPT code format: 7322", constants.CategoryInvalidCPT},
		{"Missing Patient name", constants.CategoryMissingPatientInfo},
		{"Missing billing provider NPI", constants.CategoryMissingBillingInfo},
		{"Total charge mismatch: 150.00 vs 100.00", constants.CategoryTotalChargeMismatch},
		{"Date of service error: invalid date format '13/45/2024'", constants.CategoryInvalidCPT},
		{"Unreadable date on page", constants.CategoryDateFormatError},
		{"Image too blurry", constants.CategoryImageQuality},
		{"Extraction failed: RATE_LIMITED: rate limit exceeded", constants.CategoryAPIError},
		{"OpenAI API returned 503", constants.CategoryAPIError},
		// Known misclassifications of the keyword heuristic.
		{"No line items found for ProviderBill abc", constants.CategoryUnknown},
		{"Invalid charge amount: None", constants.CategoryInvalidCPT},
		{"Missing Total charge", constants.CategoryTotalChargeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.msg))
		})
	}
}

func TestSelect_FirstPass(t *testing.T) {
	tests := []struct {
		tier constants.QualityTier
		want constants.Strategy
	}{
		{constants.QualityExcellent, constants.StrategyHighQuality},
		{constants.QualityGood, constants.StrategyStandard},
		{constants.QualityFair, constants.StrategyStandard},
		{constants.QualityPoor, constants.StrategyEnhancedContrast},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			p := Select(constants.FirstPass, imageproc.Metrics{Tier: tt.tier, Skew: 6}, "")
			assert.Equal(t, tt.want, p.Strategy)
			assert.False(t, p.Deskew, "first pass never deskews")
			assert.Equal(t, float32(0), p.Temperature)
		})
	}
}

func TestSelect_SecondPass(t *testing.T) {
	t.Run("missing patient goes zone based", func(t *testing.T) {
		p := Select(constants.SecondPass, imageproc.Metrics{Tier: constants.QualityGood}, "Missing Patient name")
		assert.Equal(t, constants.CategoryMissingPatientInfo, p.Category)
		assert.Equal(t, constants.StrategyZoneBased, p.Strategy)
		assert.True(t, p.UseZones)
		assert.Equal(t, 1.1, p.Recipe.Brightness)
		assert.Equal(t, float32(0.1), p.Temperature)
	})
	t.Run("poor quality overrides category", func(t *testing.T) {
		p := Select(constants.SecondPass, imageproc.Metrics{Tier: constants.QualityPoor}, "Missing Patient name")
		assert.Equal(t, constants.StrategyUltraEnhanced, p.Strategy)
		assert.Equal(t, imageproc.Recipe{Contrast: 2.0, Brightness: 1.2, Sharpen: true, EdgeEnhance: true}, p.Recipe)
	})
	t.Run("api errors retry plainly", func(t *testing.T) {
		p := Select(constants.SecondPass, imageproc.Metrics{Tier: constants.QualityFair}, "Extraction failed: API_ERROR: upstream 502")
		assert.Equal(t, constants.StrategyStandard, p.Strategy)
		assert.True(t, p.Recipe.IsIdentity())
	})
	t.Run("deskew above threshold", func(t *testing.T) {
		assert.True(t, Select(constants.SecondPass, imageproc.Metrics{Skew: -2.5}, "").Deskew)
		assert.False(t, Select(constants.SecondPass, imageproc.Metrics{Skew: 2.0}, "").Deskew)
	})
}

func TestZoom(t *testing.T) {
	assert.Equal(t, 2.0, Zoom(constants.FirstPass))
	assert.Equal(t, 2.5, Zoom(constants.SecondPass))
}
