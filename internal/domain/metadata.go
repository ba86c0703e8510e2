package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Metadata is the structured payload of a product. The concrete type is
// selected by the product type label and its field set is closed.
type Metadata interface {
	Tag() ProductTypeLabel
	Validate() error
}

// RawObsMeta describes a raw observation file set.
type RawObsMeta struct {
	Name       string       `json:"name"`
	Master     string       `json:"master"`
	ObsNum     int          `json:"obsnum"`
	SubObsNum  int          `json:"subobsnum"`
	ScanNum    int          `json:"scannum"`
	DataKind   DataKindBits `json:"data_kind"`
	NwID       *int         `json:"nw_id,omitempty"`
	ObsGoal    string       `json:"obs_goal,omitempty"`
	SourceName string       `json:"source_name,omitempty"`
}

func (RawObsMeta) Tag() ProductTypeLabel { return TypeRawObs }

func (m RawObsMeta) Validate() error {
	if m.Name == "" || m.Master == "" {
		return ErrValidation("raw obs metadata: name and master are required")
	}
	if m.ObsNum < 0 || m.SubObsNum < 0 || m.ScanNum < 0 {
		return ErrValidation("raw obs metadata %s: negative observation number", m.Name)
	}
	if !m.DataKind.Known() {
		return ErrValidation("raw obs metadata %s: unknown data kind bits %#x", m.Name, uint32(m.DataKind))
	}
	if m.NwID != nil && *m.NwID < 0 {
		return ErrValidation("raw obs metadata %s: negative nw_id", m.Name)
	}
	return nil
}

// Key returns the observation key the metadata belongs to.
func (m RawObsMeta) Key() ObservationKey {
	return ObservationKey{Master: m.Master, ObsNum: m.ObsNum, SubObsNum: m.SubObsNum, ScanNum: m.ScanNum}
}

// MergeMeta folds fields that accumulate across a product's files from prev
// into next. Raw observation data kinds are the union over every file; an
// observing goal or source name set earlier survives files that lack one.
func MergeMeta(prev, next Metadata) Metadata {
	p, ok := prev.(RawObsMeta)
	n, ok2 := next.(RawObsMeta)
	if !ok || !ok2 {
		return next
	}
	n.DataKind |= p.DataKind
	if n.ObsGoal == "" {
		n.ObsGoal = p.ObsGoal
	}
	if n.SourceName == "" {
		n.SourceName = p.SourceName
	}
	return n
}

// ReducedObsMeta describes a reduction of a raw observation.
type ReducedObsMeta struct {
	Name               string   `json:"name"`
	ReductionMethod    string   `json:"reduction_method"`
	CalibrationVersion string   `json:"calibration_version,omitempty"`
	ProcessingDate     string   `json:"processing_date,omitempty"`
	QualityScore       *float64 `json:"quality_score,omitempty"`
}

func (ReducedObsMeta) Tag() ProductTypeLabel { return TypeReducedObs }

func (m ReducedObsMeta) Validate() error {
	if m.Name == "" || m.ReductionMethod == "" {
		return ErrValidation("reduced obs metadata: name and reduction_method are required")
	}
	if m.QualityScore != nil && (*m.QualityScore < 0 || *m.QualityScore > 1) {
		return ErrValidation("reduced obs metadata %s: quality_score outside [0,1]", m.Name)
	}
	return nil
}

// CalGroupMeta describes a calibration group.
type CalGroupMeta struct {
	Name      string `json:"name"`
	Master    string `json:"master"`
	ObsNum    int    `json:"obsnum"`
	NItems    int    `json:"n_items"`
	GroupType string `json:"group_type,omitempty"`
	DateRange string `json:"date_range,omitempty"`
}

func (CalGroupMeta) Tag() ProductTypeLabel { return TypeCalGroup }

func (m CalGroupMeta) Validate() error {
	if m.Name == "" || m.Master == "" {
		return ErrValidation("cal group metadata: name and master are required")
	}
	if m.NItems < 0 || m.ObsNum < 0 {
		return ErrValidation("cal group metadata %s: negative count", m.Name)
	}
	return nil
}

// DrivefitMeta describes a detector drive fit over target sweeps of one
// observation.
type DrivefitMeta struct {
	Name              string   `json:"name"`
	Master            string   `json:"master"`
	ObsNum            int      `json:"obsnum"`
	NItems            int      `json:"n_items"`
	FitMethod         string   `json:"fit_method,omitempty"`
	ConvergenceStatus string   `json:"convergence_status,omitempty"`
	ChiSquared        *float64 `json:"chi_squared,omitempty"`
}

func (DrivefitMeta) Tag() ProductTypeLabel { return TypeDrivefit }

func (m DrivefitMeta) Validate() error {
	if m.Name == "" || m.Master == "" {
		return ErrValidation("drivefit metadata: name and master are required")
	}
	if m.NItems < 0 || m.ObsNum < 0 {
		return ErrValidation("drivefit metadata %s: negative count", m.Name)
	}
	if m.ChiSquared != nil && *m.ChiSquared < 0 {
		return ErrValidation("drivefit metadata %s: negative chi_squared", m.Name)
	}
	return nil
}

// FocusGroupMeta describes a focus sequence.
type FocusGroupMeta struct {
	Name           string    `json:"name"`
	Master         string    `json:"master"`
	ObsNum         int       `json:"obsnum"`
	NItems         int       `json:"n_items"`
	FocusPositions []float64 `json:"focus_positions,omitempty"`
	BestFocus      *float64  `json:"best_focus,omitempty"`
	FocusMetric    string    `json:"focus_metric,omitempty"`
}

func (FocusGroupMeta) Tag() ProductTypeLabel { return TypeFocusGroup }

func (m FocusGroupMeta) Validate() error {
	if m.Name == "" || m.Master == "" {
		return ErrValidation("focus group metadata: name and master are required")
	}
	if m.NItems < 0 || m.ObsNum < 0 {
		return ErrValidation("focus group metadata %s: negative count", m.Name)
	}
	return nil
}

// NamedGroupMeta describes a user-named collection.
type NamedGroupMeta struct {
	GroupName string   `json:"group_name"`
	NItems    int      `json:"n_items"`
	Tags      []string `json:"tags,omitempty"`
	Owner     string   `json:"owner,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

func (NamedGroupMeta) Tag() ProductTypeLabel { return TypeNamedGroup }

func (m NamedGroupMeta) Validate() error {
	if m.GroupName == "" {
		return ErrValidation("named group metadata: group_name is required")
	}
	if m.NItems < 0 {
		return ErrValidation("named group metadata %s: negative n_items", m.GroupName)
	}
	return nil
}

// ArtifactMeta describes derived science artifacts (maps and catalogs).
type ArtifactMeta struct {
	Kind       ProductTypeLabel `json:"-"`
	Name       string           `json:"name"`
	Instrument string           `json:"instrument,omitempty"`
	Notes      string           `json:"notes,omitempty"`
}

func (m ArtifactMeta) Tag() ProductTypeLabel { return m.Kind }

func (m ArtifactMeta) Validate() error {
	if m.Kind != TypeMap && m.Kind != TypeCatalog {
		return ErrValidation("artifact metadata: unsupported type %q", m.Kind)
	}
	if m.Name == "" {
		return ErrValidation("artifact metadata: name is required")
	}
	return nil
}

type metadataEnvelope struct {
	Tag  ProductTypeLabel `json:"tag"`
	Data json.RawMessage  `json:"data"`
}

// EncodeMetadata serializes m as a tagged envelope.
func EncodeMetadata(m Metadata) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s metadata: %w", m.Tag(), err)
	}
	return json.Marshal(metadataEnvelope{Tag: m.Tag(), Data: data})
}

// DecodeMetadata parses a tagged envelope into its concrete type, rejecting
// unknown tags and unknown fields.
func DecodeMetadata(raw []byte) (Metadata, error) {
	var env metadataEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrValidation("decode metadata envelope: %v", err)
	}

	var target Metadata
	switch env.Tag {
	case TypeRawObs:
		target = &RawObsMeta{}
	case TypeReducedObs:
		target = &ReducedObsMeta{}
	case TypeCalGroup:
		target = &CalGroupMeta{}
	case TypeDrivefit:
		target = &DrivefitMeta{}
	case TypeFocusGroup:
		target = &FocusGroupMeta{}
	case TypeNamedGroup:
		target = &NamedGroupMeta{}
	case TypeMap, TypeCatalog:
		target = &ArtifactMeta{Kind: env.Tag}
	default:
		return nil, ErrValidation("unknown metadata tag %q", env.Tag)
	}

	dec := json.NewDecoder(bytes.NewReader(env.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, ErrValidation("decode %s metadata: %v", env.Tag, err)
	}

	m := deref(target)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// deref returns the value form so callers can type-switch on plain structs.
func deref(m Metadata) Metadata {
	switch v := m.(type) {
	case *RawObsMeta:
		return *v
	case *ReducedObsMeta:
		return *v
	case *CalGroupMeta:
		return *v
	case *DrivefitMeta:
		return *v
	case *FocusGroupMeta:
		return *v
	case *NamedGroupMeta:
		return *v
	case *ArtifactMeta:
		return *v
	}
	return m
}
