package model

// RangeKind describes how a planned range was discovered
type RangeKind string

const (
	RangeKindRecent     RangeKind = "recent"
	RangeKindInternal   RangeKind = "internal"
	RangeKindHistorical RangeKind = "historical"
)

// PlannedRange represents one missing time range scheduled for backfill
type PlannedRange struct {
	Kind            RangeKind `json:"kind"`
	Start           int64     `json:"start"`
	End             int64     `json:"end"`
	EstimatedCount  int       `json:"estimated_count"`
	IntervalSeconds int64     `json:"interval_seconds"`
}

// DownloadState is the lifecycle state of a backfill plan
type DownloadState string

const (
	DownloadStateIdle      DownloadState = "idle"
	DownloadStatePlanning  DownloadState = "planning"
	DownloadStateDraining  DownloadState = "draining"
	DownloadStateDone      DownloadState = "done"
	DownloadStateCancelled DownloadState = "cancelled"
)

// DownloadProgress tracks a backfill plan for one series while it is in
// flight. It is owned and mutated only by the coordinator loop driving the
// drain, and survives between batches so an interrupted plan can resume.
type DownloadProgress struct {
	PlanID            string         `json:"plan_id"`
	Series            SeriesID       `json:"series"`
	State             DownloadState  `json:"state"`
	PendingRanges     []PlannedRange `json:"pending_ranges"`
	CurrentRangeStart int64          `json:"current_range_start"`
	CurrentRangeEnd   int64          `json:"current_range_end"`
	CandlesFetched    int            `json:"candles_fetched"`
	EstimatedTotal    int            `json:"estimated_total"`
}

// Percent returns the fetched/estimated completion ratio in [0, 100]
func (p *DownloadProgress) Percent() float64 {
	if p.EstimatedTotal <= 0 {
		return 0
	}
	pct := float64(p.CandlesFetched) / float64(p.EstimatedTotal) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}
