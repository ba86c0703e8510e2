package domain

import "time"

// EdgeTypeLabel names a registered provenance edge type.
type EdgeTypeLabel string

// Seeded edge types.
const (
	EdgeRawObsCalObs      EdgeTypeLabel = "dpa_raw_obs_cal_obs"
	EdgeReducedObsRawObs  EdgeTypeLabel = "dpa_reduced_obs_raw_obs"
	EdgeCalGroupRawObs    EdgeTypeLabel = "dpa_cal_group_raw_obs"
	EdgeDrivefitRawObs    EdgeTypeLabel = "dpa_drivefit_raw_obs"
	EdgeFocusGroupRawObs  EdgeTypeLabel = "dpa_focus_group_raw_obs"
	EdgeNamedGroupProduct EdgeTypeLabel = "dpa_named_group_data_prod"
)

// EdgeType is a row of the edge type registry.
type EdgeType struct {
	ID          int64
	Label       EdgeTypeLabel
	Description string
}

// SeedEdgeTypes is the registry content written at catalog init.
var SeedEdgeTypes = []EdgeType{
	{Label: EdgeRawObsCalObs, Description: "calibration source of a raw observation"},
	{Label: EdgeReducedObsRawObs, Description: "reduced observation derived from raw"},
	{Label: EdgeCalGroupRawObs, Description: "calibration group contains raw observation"},
	{Label: EdgeDrivefitRawObs, Description: "drive fit group contains raw observation"},
	{Label: EdgeFocusGroupRawObs, Description: "focus group contains raw observation"},
	{Label: EdgeNamedGroupProduct, Description: "named collection contains product"},
}

// EdgeContext records the process that established an edge.
type EdgeContext struct {
	Tool    string            `json:"tool,omitempty"`
	Version string            `json:"version,omitempty"`
	Config  map[string]string `json:"config,omitempty"`
}

// ProvenanceEdge is a directed typed relation between two products.
type ProvenanceEdge struct {
	ID        int64
	Type      EdgeTypeLabel
	SrcID     string
	DstID     string
	Context   EdgeContext
	CreatedAt time.Time
}
