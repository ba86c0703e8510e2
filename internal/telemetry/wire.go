package telemetry

import (
	"time"

	"toltec-dpdb/internal/domain"
)

// PartJSON is the wire form of a part record on the telemetry REST facade.
type PartJSON struct {
	Master    string    `json:"master"`
	ObsNum    int       `json:"obsnum"`
	SubObsNum int       `json:"subobsnum"`
	ScanNum   int       `json:"scannum"`
	Part      int       `json:"part"`
	Valid     bool      `json:"valid"`
	FileName  string    `json:"filename,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// KeyJSON is the wire form of an observation key.
type KeyJSON struct {
	Master    string `json:"master"`
	ObsNum    int    `json:"obsnum"`
	SubObsNum int    `json:"subobsnum"`
	ScanNum   int    `json:"scannum"`
}

// ToPartJSON converts a record for the wire.
func ToPartJSON(r domain.PartRecord) PartJSON {
	return PartJSON{
		Master: r.Key.Master, ObsNum: r.Key.ObsNum, SubObsNum: r.Key.SubObsNum, ScanNum: r.Key.ScanNum,
		Part: r.Part, Valid: r.Valid, FileName: r.FileName, Timestamp: r.Timestamp.UTC(),
	}
}

// Record converts back to the domain type.
func (p PartJSON) Record() domain.PartRecord {
	return domain.PartRecord{
		Key:  domain.ObservationKey{Master: p.Master, ObsNum: p.ObsNum, SubObsNum: p.SubObsNum, ScanNum: p.ScanNum},
		Part: p.Part, Valid: p.Valid, FileName: p.FileName, Timestamp: p.Timestamp,
	}
}

// ToKeyJSON converts a key for the wire.
func ToKeyJSON(k domain.ObservationKey) KeyJSON {
	return KeyJSON{Master: k.Master, ObsNum: k.ObsNum, SubObsNum: k.SubObsNum, ScanNum: k.ScanNum}
}

// Key converts back to the domain type.
func (k KeyJSON) Key() domain.ObservationKey {
	return domain.ObservationKey{Master: k.Master, ObsNum: k.ObsNum, SubObsNum: k.SubObsNum, ScanNum: k.ScanNum}
}
