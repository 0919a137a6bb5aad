package visionplus

import (
	"time"
	"visionsync-backend/lib/textutil"
	"visionsync-backend/lib/timezone"

	"github.com/antzucaro/matchr"
)

// local branch name -> VisionPlus branch label
var branchLabels = map[string]string{
	"Robinson House":            "Robinson House",
	"Kensington":                "Kensington",
	"Honeydew Lifestyle Centre": "Honeydew",
	"Chipinge Branch":           "Chipinge",
	"Chiredzi Branch":           "Chiredzi",
}

// local service type -> VisionPlus service label
var serviceLabels = map[string]string{
	"Eye Test":               "Eye Test",
	"Contact Lens Fitting":   "Contact Lens Fit",
	"Contact Lens Aftercare": "Contact Lens Aftercare",
	"Dispensing Only":        "Dispensing Only",
	"Low Vision":             "Low Vision",
	"Visual Field Test":      "Visual Field Test",
}

// local appointment status -> VisionPlus status label
var statusLabels = map[string]string{
	"CONFIRMED": "Confirmed",
	"CANCELLED": "Cancelled",
	"COMPLETED": "Completed",
	"NOSHOW":    "No Show",
	"PENDING":   "Pending",
}

// MapBranch translates a local branch name, unknown names pass through.
func MapBranch(branch string) string {
	if label, ok := branchLabels[branch]; ok {
		return label
	}
	return branch
}

// MapService translates a local service type, unknown types pass through.
func MapService(service string) string {
	if label, ok := serviceLabels[service]; ok {
		return label
	}
	return service
}

// MapStatus translates a local appointment status, unknown statuses pass through.
func MapStatus(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

// FormatDate renders a date the way VisionPlus date inputs expect it (DD/MM/YYYY).
func FormatDate(t time.Time) string {
	return t.In(timezone.Location).Format("02/01/2006")
}

func Branches() []string {
	return []string{
		"Robinson House",
		"Kensington",
		"Honeydew Lifestyle Centre",
		"Chipinge Branch",
		"Chiredzi Branch",
	}
}

func Services() []string {
	return []string{
		"Eye Test",
		"Contact Lens Fitting",
		"Contact Lens Aftercare",
		"Dispensing Only",
		"Low Vision",
		"Visual Field Test",
	}
}

// below this a scraped option is not considered to be the mapped label
const optionSimilarityThreshold = 0.85

// MatchOption picks the <option> a mapped label refers to. Exact value or
// label matches win, otherwise the most similar label above the threshold.
func MatchOption(options []Option, label string) (Option, float64, bool) {
	for _, opt := range options {
		if opt.Value == label || textutil.LabelsEqual(opt.Label, label) {
			return opt, 1, true
		}
	}

	target := textutil.NormalizeLabel(label)
	var best Option
	var bestSimilarity float64
	for _, opt := range options {
		similarity := matchr.JaroWinkler(textutil.NormalizeLabel(opt.Label), target, false)
		if similarity > bestSimilarity {
			bestSimilarity = similarity
			best = opt
		}
	}
	if bestSimilarity < optionSimilarityThreshold {
		return Option{}, bestSimilarity, false
	}
	return best, bestSimilarity, true
}
