package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ObservationKey identifies one logical multi-part observation (a quartet).
type ObservationKey struct {
	Master    string
	ObsNum    int
	SubObsNum int
	ScanNum   int
}

var observationKeyRe = regexp.MustCompile(`^([a-z_]+)-(\d+)-(\d+)-(\d+)$`)

// String renders the key as master-obsnum-subobsnum-scannum.
func (k ObservationKey) String() string {
	return fmt.Sprintf("%s-%d-%d-%d", k.Master, k.ObsNum, k.SubObsNum, k.ScanNum)
}

// Validate rejects keys with an empty master or negative numbers.
func (k ObservationKey) Validate() error {
	if k.Master == "" {
		return ErrValidation("observation key: master is required")
	}
	if k.ObsNum < 0 || k.SubObsNum < 0 || k.ScanNum < 0 {
		return ErrValidation("observation key %s: numbers must be non-negative", k)
	}
	return nil
}

// Less orders keys of the same master by (obsnum, subobsnum, scannum).
func (k ObservationKey) Less(o ObservationKey) bool {
	if k.ObsNum != o.ObsNum {
		return k.ObsNum < o.ObsNum
	}
	if k.SubObsNum != o.SubObsNum {
		return k.SubObsNum < o.SubObsNum
	}
	return k.ScanNum < o.ScanNum
}

// ParseObservationKey parses the String form of a key.
func ParseObservationKey(s string) (ObservationKey, error) {
	m := observationKeyRe.FindStringSubmatch(s)
	if m == nil {
		return ObservationKey{}, ErrValidation("invalid observation key %q", s)
	}
	nums := make([]int, 3)
	for i := range nums {
		n, err := strconv.Atoi(m[i+2])
		if err != nil {
			return ObservationKey{}, ErrValidation("invalid observation key %q: %v", s, err)
		}
		nums[i] = n
	}
	return ObservationKey{Master: m[1], ObsNum: nums[0], SubObsNum: nums[1], ScanNum: nums[2]}, nil
}

// PartStatus is the observed state of one part. States only move forward.
type PartStatus int

// Part states in transition order.
const (
	PartMissing PartStatus = iota
	PartInvalid
	PartValid
)

func (s PartStatus) String() string {
	switch s {
	case PartMissing:
		return "MISSING"
	case PartInvalid:
		return "INVALID"
	case PartValid:
		return "VALID"
	}
	return fmt.Sprintf("PartStatus(%d)", int(s))
}

// MarshalText renders the status name for JSON payloads.
func (s PartStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// PartRecord is one telemetry row for a part of an observation.
type PartRecord struct {
	Key       ObservationKey
	Part      int
	Valid     bool
	FileName  string
	Timestamp time.Time
}

// Status classifies a present record.
func (r PartRecord) Status() PartStatus {
	if r.Valid {
		return PartValid
	}
	return PartInvalid
}
