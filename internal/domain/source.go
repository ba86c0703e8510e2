package domain

import "time"

// StorageRole classifies a source among a product's copies.
type StorageRole string

// Storage roles.
const (
	RolePrimary StorageRole = "PRIMARY"
	RoleMirror  StorageRole = "MIRROR"
	RoleTemp    StorageRole = "TEMP"
)

// Valid reports whether r is a known role.
func (r StorageRole) Valid() bool {
	return r == RolePrimary || r == RoleMirror || r == RoleTemp
}

// LocationType names the backend that serves a location's root URI.
type LocationType string

// Location types.
const (
	LocationFilesystem LocationType = "filesystem"
	LocationS3         LocationType = "s3"
	LocationGCS        LocationType = "gcs"
	LocationAzure      LocationType = "azure"
	LocationHTTP       LocationType = "http"
)

// Location is a registered data root.
type Location struct {
	ID        int64
	Label     string
	Type      LocationType
	RootURI   string
	Priority  int
	Meta      map[string]string
	CreatedAt time.Time
}

// Validate checks the registration fields.
func (l Location) Validate() error {
	if l.Label == "" {
		return ErrValidation("location label is required")
	}
	if l.RootURI == "" {
		return ErrValidation("location %q: root uri is required", l.Label)
	}
	switch l.Type {
	case LocationFilesystem, LocationS3, LocationGCS, LocationAzure, LocationHTTP:
	default:
		return ErrValidation("location %q: unknown type %q", l.Label, l.Type)
	}
	return nil
}

// SourceMeta carries the interface-level details of one physical file.
type SourceMeta struct {
	Interface string `json:"interface,omitempty"`
	RoachID   *int   `json:"roach,omitempty"`
	NwID      *int   `json:"nw_id,omitempty"`
}

// Source is one retrieval location for a product. URI is absolute: the
// location root joined with the file's relative path.
type Source struct {
	URI            string
	ProductID      string
	LocationLabel  string
	Role           StorageRole
	Availability   AvailabilityState
	Size           *int64
	Checksum       *string
	Meta           SourceMeta
	LastVerifiedAt *time.Time
	CreatedAt      time.Time
}

// Validate checks the source fields.
func (s Source) Validate() error {
	if s.URI == "" {
		return ErrValidation("source uri is required")
	}
	if s.LocationLabel == "" {
		return ErrValidation("source %s: location label is required", s.URI)
	}
	if !s.Role.Valid() {
		return ErrValidation("source %s: invalid role %q", s.URI, s.Role)
	}
	if !s.Availability.Valid() {
		return ErrValidation("source %s: invalid availability %q", s.URI, s.Availability)
	}
	return nil
}

// SourceVerification is the outcome of re-checking one source.
type SourceVerification struct {
	URI          string            `json:"uri"`
	Availability AvailabilityState `json:"availability"`
	Size         *int64            `json:"size,omitempty"`
	VerifiedAt   time.Time         `json:"verified_at"`
}
