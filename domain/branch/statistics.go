package branch

import "time"

// SizeRank is a branch ranked by on-disk size.
type SizeRank struct {
	Reference Reference
	SizeBytes int64
}

// RecentVisit is a branch ranked by the time it was last requested.
type RecentVisit struct {
	Reference Reference
	VisitedAt time.Time
}

// Popularity is a branch ranked by how often it was requested.
type Popularity struct {
	Reference Reference
	Count     int64
}
