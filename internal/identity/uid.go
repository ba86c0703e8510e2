package identity

import (
	"fmt"

	"toltec-dpdb/internal/domain"
)

// RawObsFields is the identity tuple of a raw observation.
func RawObsFields(key domain.ObservationKey) Fields {
	return Fields{
		"master":    key.Master,
		"obsnum":    key.ObsNum,
		"subobsnum": key.SubObsNum,
		"scannum":   key.ScanNum,
	}
}

// RawObsID is the product ID of the raw observation identified by key.
func RawObsID(key domain.ObservationKey) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	return Hash(domain.TypeRawObs, RawObsFields(key))
}

// RawObsUID is the human-readable uid of a raw observation.
func RawObsUID(key domain.ObservationKey) string { return key.String() }

// ParseRawObsUID inverts RawObsUID.
func ParseRawObsUID(uid string) (domain.ObservationKey, error) {
	return domain.ParseObservationKey(uid)
}

// ReducedObsUID is the uid of the reduction of a raw observation.
func ReducedObsUID(key domain.ObservationKey) string { return key.String() + "-reduced" }

// CalGroupUID is the uid of calibration group n started at (master, obsnum).
func CalGroupUID(master string, obsnum, n int) string {
	return fmt.Sprintf("%s-%d-g%d-cal", master, obsnum, n)
}

// GroupUID is the uid of a generic group with the given suffix.
func GroupUID(master string, obsnum, n int, suffix string) string {
	return fmt.Sprintf("%s-%d-g%d-%s", master, obsnum, n, suffix)
}
