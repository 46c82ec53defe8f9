package domain

// QualityTier is one of the three discrete audio quality levels.
type QualityTier string

const (
	TierLow    QualityTier = "LOW"
	TierMedium QualityTier = "MEDIUM"
	TierHigh   QualityTier = "HIGH"
)

func (t QualityTier) Valid() bool {
	switch t {
	case TierLow, TierMedium, TierHigh:
		return true
	}
	return false
}

// LayerIndex maps the tier to the media engine's discrete preferred-layer
// index (0 = LOW, 1 = MEDIUM, 2 = HIGH).
func (t QualityTier) LayerIndex() int {
	switch t {
	case TierLow:
		return 0
	case TierMedium:
		return 1
	default:
		return 2
	}
}
