package domain

import "time"

// ProductTypeLabel names a registered product type.
type ProductTypeLabel string

// Seeded product types.
const (
	TypeRawObs     ProductTypeLabel = "dp_raw_obs"
	TypeReducedObs ProductTypeLabel = "dp_reduced_obs"
	TypeCalGroup   ProductTypeLabel = "dp_cal_group"
	TypeDrivefit   ProductTypeLabel = "dp_drivefit"
	TypeFocusGroup ProductTypeLabel = "dp_focus_group"
	TypeMap        ProductTypeLabel = "dp_map"
	TypeCatalog    ProductTypeLabel = "dp_catalog"
	TypeNamedGroup ProductTypeLabel = "dp_named_group"
)

// ProductType is a row of the product type registry.
type ProductType struct {
	ID          int64
	Label       ProductTypeLabel
	Level       int
	Description string
}

// SeedProductTypes is the registry content written at catalog init.
var SeedProductTypes = []ProductType{
	{Label: TypeRawObs, Level: 0, Description: "Raw observation file set"},
	{Label: TypeReducedObs, Level: 1, Description: "Reduced observation"},
	{Label: TypeCalGroup, Level: 1, Description: "Calibration group"},
	{Label: TypeDrivefit, Level: 1, Description: "Drive fit result"},
	{Label: TypeFocusGroup, Level: 1, Description: "Focus group"},
	{Label: TypeMap, Level: 2, Description: "Science map"},
	{Label: TypeCatalog, Level: 2, Description: "Source catalog"},
	{Label: TypeNamedGroup, Level: 1, Description: "Named collection of products"},
}

// LifecycleStatus tracks whether a product is current.
type LifecycleStatus string

// Lifecycle values.
const (
	LifecycleActive     LifecycleStatus = "ACTIVE"
	LifecycleSuperseded LifecycleStatus = "SUPERSEDED"
)

// Valid reports whether s is a known lifecycle value.
func (s LifecycleStatus) Valid() bool {
	return s == LifecycleActive || s == LifecycleSuperseded
}

// AvailabilityState records whether a product's bytes are retrievable.
type AvailabilityState string

// Availability values.
const (
	AvailabilityAvailable AvailabilityState = "AVAILABLE"
	AvailabilityMissing   AvailabilityState = "MISSING"
	AvailabilityRemote    AvailabilityState = "REMOTE"
	AvailabilityStaged    AvailabilityState = "STAGED"
)

// Valid reports whether s is a known availability value.
func (s AvailabilityState) Valid() bool {
	switch s {
	case AvailabilityAvailable, AvailabilityMissing, AvailabilityRemote, AvailabilityStaged:
		return true
	}
	return false
}

// Product is one cataloged data artifact. ID is the identity hash.
type Product struct {
	ID           string
	Type         ProductTypeLabel
	Lifecycle    LifecycleStatus
	Availability AvailabilityState
	ContentHash  *string
	Meta         Metadata
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProductUpsert carries the mutable state written by UpsertProduct.
type ProductUpsert struct {
	ID           string
	Type         ProductTypeLabel
	Lifecycle    LifecycleStatus
	Availability AvailabilityState
	ContentHash  *string
	Meta         Metadata
}

// Validate checks the upsert payload, including the metadata tag.
func (u ProductUpsert) Validate() error {
	if u.ID == "" {
		return ErrValidation("product id is required")
	}
	if u.Type == "" {
		return ErrValidation("product type is required")
	}
	if !u.Lifecycle.Valid() {
		return ErrValidation("invalid lifecycle status %q", u.Lifecycle)
	}
	if !u.Availability.Valid() {
		return ErrValidation("invalid availability state %q", u.Availability)
	}
	if u.Meta == nil {
		return ErrValidation("metadata is required for product %s", u.ID)
	}
	if u.Meta.Tag() != u.Type {
		return ErrValidation("metadata tag %q does not match product type %q", u.Meta.Tag(), u.Type)
	}
	return u.Meta.Validate()
}

// ProductFilter combines predicates for ListProducts. Zero values are ignored.
type ProductFilter struct {
	Type          ProductTypeLabel
	Lifecycle     LifecycleStatus
	Availability  AvailabilityState
	LocationLabel string
	SourceRole    StorageRole
	HasKind       string
	HasFlag       *FlagRef
	Page          PageRequest
}
