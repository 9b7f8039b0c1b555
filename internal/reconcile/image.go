package reconcile

import "github.com/javajoker/catalog-backend/internal/models"

type ImageDecision int

const (
	KeepExisting ImageDecision = iota
	UseCandidate
)

func (d ImageDecision) String() string {
	if d == UseCandidate {
		return "use_candidate"
	}
	return "keep_existing"
}

// DecideImage moves the image only upward through none < low < high. A
// candidate without a URL never replaces anything.
func DecideImage(existingURL string, existingQuality models.ImageQuality, candidateURL string, candidateQuality models.ImageQuality) ImageDecision {
	if candidateURL == "" {
		return KeepExisting
	}
	if existingURL == "" {
		return UseCandidate
	}
	if effectiveTier(candidateURL, candidateQuality).Rank() > effectiveTier(existingURL, existingQuality).Rank() {
		return UseCandidate
	}
	return KeepExisting
}

// A stored image with no recorded tier counts as low.
func effectiveTier(url string, q models.ImageQuality) models.ImageQuality {
	if url == "" {
		return models.ImageQualityNone
	}
	if !q.Valid() {
		return models.ImageQualityLow
	}
	return q
}
