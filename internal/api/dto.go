package api

import (
	"time"

	"toltec-dpdb/internal/completion"
	"toltec-dpdb/internal/domain"
)

// ProductJSON is the wire form of a product.
type ProductJSON struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Lifecycle    string          `json:"lifecycle"`
	Availability string          `json:"availability"`
	ContentHash  *string         `json:"content_hash,omitempty"`
	Meta         domain.Metadata `json:"meta"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ProductDetailJSON is a product together with its sources, kinds and flags.
type ProductDetailJSON struct {
	ProductJSON
	Sources []SourceJSON `json:"sources"`
	Kinds   []KindJSON   `json:"kinds"`
	Flags   []FlagJSON   `json:"flags"`
}

// SourceJSON is the wire form of a source.
type SourceJSON struct {
	URI            string            `json:"uri"`
	Location       string            `json:"location"`
	Role           string            `json:"role"`
	Availability   string            `json:"availability"`
	Size           *int64            `json:"size,omitempty"`
	Checksum       *string           `json:"checksum,omitempty"`
	Meta           domain.SourceMeta `json:"meta"`
	LastVerifiedAt *time.Time        `json:"last_verified_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// KindJSON is the wire form of a kind assignment.
type KindJSON struct {
	Label      string    `json:"label"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
	AppliedAt  time.Time `json:"applied_at"`
}

// FlagJSON is the wire form of a flag assignment.
type FlagJSON struct {
	Flag       string            `json:"flag"`
	AssertedBy string            `json:"asserted_by"`
	AssertedAt time.Time         `json:"asserted_at"`
	Context    map[string]string `json:"context,omitempty"`
}

// EdgeJSON is the wire form of a provenance edge.
type EdgeJSON struct {
	ID        int64              `json:"id"`
	Type      string             `json:"type"`
	Src       string             `json:"src"`
	Dst       string             `json:"dst"`
	Context   domain.EdgeContext `json:"context"`
	CreatedAt time.Time          `json:"created_at"`
}

// EventJSON is the wire form of an event log entry.
type EventJSON struct {
	Seq           int64                  `json:"seq"`
	Type          string                 `json:"type"`
	EntityType    string                 `json:"entity_type"`
	EntityID      string                 `json:"entity_id"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	OccurredAt    time.Time              `json:"occurred_at"`
}

// LocationJSON is the wire form of a registered location.
type LocationJSON struct {
	Label    string            `json:"label"`
	Type     string            `json:"type"`
	RootURI  string            `json:"root_uri"`
	Priority int               `json:"priority"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// ObservationJSON is an evaluation of one observation.
type ObservationJSON struct {
	Key string `json:"key"`
	*completion.Evaluation
}

// PartJSON is the record of one valid part.
type PartJSON struct {
	Key       string    `json:"key"`
	Part      int       `json:"part"`
	Group     string    `json:"group"`
	FileName  string    `json:"filename,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ListProductsResponse is one page of products.
type ListProductsResponse struct {
	Products      []ProductJSON `json:"products"`
	NextPageToken string        `json:"next_page_token,omitempty"`
	Total         int64         `json:"total"`
}

// The To*JSON converters are shared with the CLI's json output.

func ToProductJSON(p domain.Product) ProductJSON {
	return ProductJSON{
		ID:           p.ID,
		Type:         string(p.Type),
		Lifecycle:    string(p.Lifecycle),
		Availability: string(p.Availability),
		ContentHash:  p.ContentHash,
		Meta:         p.Meta,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func ToSourceJSON(s domain.Source) SourceJSON {
	return SourceJSON{
		URI:            s.URI,
		Location:       s.LocationLabel,
		Role:           string(s.Role),
		Availability:   string(s.Availability),
		Size:           s.Size,
		Checksum:       s.Checksum,
		Meta:           s.Meta,
		LastVerifiedAt: s.LastVerifiedAt,
		CreatedAt:      s.CreatedAt,
	}
}

func ToKindJSON(k domain.KindAssignment) KindJSON {
	return KindJSON{Label: k.KindLabel, Source: string(k.Source), Confidence: k.Confidence, AppliedAt: k.AppliedAt}
}

func ToFlagJSON(a domain.FlagAssignment) FlagJSON {
	return FlagJSON{Flag: a.Flag.String(), AssertedBy: a.AssertedBy, AssertedAt: a.AssertedAt, Context: a.Context}
}

func ToEdgeJSON(e domain.ProvenanceEdge) EdgeJSON {
	return EdgeJSON{ID: e.ID, Type: string(e.Type), Src: e.SrcID, Dst: e.DstID, Context: e.Context, CreatedAt: e.CreatedAt}
}

func ToEventJSON(e domain.Event) EventJSON {
	return EventJSON{
		Seq: e.Seq, Type: string(e.Type), EntityType: e.EntityType, EntityID: e.EntityID,
		CorrelationID: e.CorrelationID, Payload: e.Payload, OccurredAt: e.OccurredAt,
	}
}

func ToLocationJSON(l domain.Location) LocationJSON {
	return LocationJSON{Label: l.Label, Type: string(l.Type), RootURI: l.RootURI, Priority: l.Priority, Meta: l.Meta}
}

func mapSlice[T, U any](in []T, fn func(T) U) []U {
	out := make([]U, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
