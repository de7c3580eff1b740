package domain

import "strings"

// Priority is the integer service class of a task. Higher values are served first.
type Priority int

const (
	PriorityFree       Priority = 1
	PriorityPro        Priority = 2
	PriorityEnterprise Priority = 3

	MinPriority = PriorityFree
	MaxPriority = PriorityEnterprise
)

func (p Priority) Valid() bool {
	return p >= MinPriority && p <= MaxPriority
}

func (p Priority) String() string {
	switch p {
	case PriorityEnterprise:
		return "enterprise"
	case PriorityPro:
		return "pro"
	case PriorityFree:
		return "free"
	default:
		return "unknown"
	}
}

// PriorityForTier maps a subscription tier to its priority class.
// Unknown tiers get the lowest class.
func PriorityForTier(tier string) Priority {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "enterprise":
		return PriorityEnterprise
	case "pro":
		return PriorityPro
	default:
		return PriorityFree
	}
}
