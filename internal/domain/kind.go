package domain

import "time"

// DataKindBits is a bitmask of acquisition-mode kinds.
type DataKindBits uint32

// Known data kinds. RawSweep is a composite of the three sweep modes.
const (
	KindVnaSweep      DataKindBits = 1 << 0
	KindTargetSweep   DataKindBits = 1 << 1
	KindTune          DataKindBits = 1 << 2
	KindRawTimeStream DataKindBits = 1 << 3

	KindRawSweep = KindVnaSweep | KindTargetSweep | KindTune
	kindAll      = KindRawSweep | KindRawTimeStream
)

var kindLabels = []struct {
	bit      DataKindBits
	label    string
	category string
}{
	{KindVnaSweep, "VnaSweep", "calibration"},
	{KindTargetSweep, "TargetSweep", "calibration"},
	{KindTune, "Tune", "calibration"},
	{KindRawTimeStream, "RawTimeStream", "measurement"},
}

// Known reports whether every bit in k names a registered kind.
func (k DataKindBits) Known() bool { return k&^kindAll == 0 }

// Labels decomposes k into its registered kind labels in bit order.
func (k DataKindBits) Labels() []string {
	var out []string
	for _, kl := range kindLabels {
		if k&kl.bit != 0 {
			out = append(out, kl.label)
		}
	}
	return out
}

// DataKind is a row of the data kind registry.
type DataKind struct {
	ID          int64
	Label       string
	Category    string
	Description string
}

// SeedDataKinds returns the registry content written at catalog init.
func SeedDataKinds() []DataKind {
	out := make([]DataKind, 0, len(kindLabels))
	for _, kl := range kindLabels {
		out = append(out, DataKind{Label: kl.label, Category: kl.category})
	}
	return out
}

// KindSource records how a kind was assigned to a product.
type KindSource string

// Kind assignment sources.
const (
	KindSourceAutomatic KindSource = "automatic"
	KindSourceManual    KindSource = "manual"
	KindSourceInferred  KindSource = "inferred"
)

// KindAssignment links a product to a data kind.
type KindAssignment struct {
	ProductID  string
	KindLabel  string
	Source     KindSource
	Confidence float64
	AppliedAt  time.Time
}

// Validate checks the assignment's source and confidence.
func (a KindAssignment) Validate() error {
	switch a.Source {
	case KindSourceAutomatic, KindSourceManual, KindSourceInferred:
	default:
		return ErrValidation("invalid kind assignment source %q", a.Source)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return ErrValidation("kind confidence %v outside [0,1]", a.Confidence)
	}
	return nil
}
