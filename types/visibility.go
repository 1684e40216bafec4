package types

// VisibilityTier is the granularity at which a viewer sees a course roster.
type VisibilityTier int

const (
	// TierFull sees the entire roster.
	TierFull VisibilityTier = iota
	// TierSectioned sees only the viewer's own sections.
	TierSectioned
	// TierRestricted sees only teachers, TAs and the viewer's observed students.
	TierRestricted
)

// String returns the tier name.
func (t VisibilityTier) String() string {
	switch t {
	case TierFull:
		return "full"
	case TierSectioned:
		return "sections"
	case TierRestricted:
		return "restricted"
	default:
		return "unknown"
	}
}
