// Package filename parses and builds acquisition filenames.
//
// Three grammars are recognized:
//
//	{prefix}{part}_{obsnum:06d}_{subobsnum:02d}_{scannum:04d}_{interface}_{roachId}.nc
//	{prefix}{part}_{obsnum:06d}_{subobsnum:02d}_{scannum:04d}.txt
//	{prefix}_timestream_{obsnum:06d}_{subobsnum:02d}_{scannum:04d}.nc
//
// Build is the exact inverse of Parse.
package filename

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"toltec-dpdb/internal/domain"
)

// Grammar identifies which filename form a Name follows.
type Grammar int

const (
	// GrammarInterface is a per-interface NetCDF file.
	GrammarInterface Grammar = iota + 1
	// GrammarText is a per-part text log.
	GrammarText
	// GrammarTimestream is a combined timestream NetCDF file.
	GrammarTimestream
)

func (g Grammar) String() string {
	switch g {
	case GrammarInterface:
		return "interface"
	case GrammarText:
		return "text"
	case GrammarTimestream:
		return "timestream"
	}
	return fmt.Sprintf("Grammar(%d)", int(g))
}

var (
	// Part and roach indices are unpadded, so a leading zero would not
	// survive Build.
	interfaceRe  = regexp.MustCompile(`^([a-z]+)(0|[1-9]\d*)_(\d+)_(\d+)_(\d+)_(\w+)_(0|[1-9]\d*)\.nc$`)
	textRe       = regexp.MustCompile(`^([a-z]+)(0|[1-9]\d*)_(\d+)_(\d+)_(\d+)\.txt$`)
	timestreamRe = regexp.MustCompile(`^([a-z]+)_timestream_(\d+)_(\d+)_(\d+)\.nc$`)
)

// Name is the structured form of an acquisition filename.
type Name struct {
	Grammar   Grammar
	Prefix    string
	Part      int // unset for GrammarTimestream
	ObsNum    int
	SubObsNum int
	ScanNum   int
	Interface string // GrammarInterface only
	RoachID   int    // GrammarInterface only
}

// Parse parses the base name of path. Names matching no grammar yield a
// ValidationError.
func Parse(path string) (Name, error) {
	base := filepath.Base(path)

	if m := interfaceRe.FindStringSubmatch(base); m != nil {
		nums, err := atoiAll(base, m[2], m[3], m[4], m[5], m[7])
		if err != nil {
			return Name{}, err
		}
		return Name{
			Grammar: GrammarInterface, Prefix: m[1], Part: nums[0],
			ObsNum: nums[1], SubObsNum: nums[2], ScanNum: nums[3],
			Interface: m[6], RoachID: nums[4],
		}, nil
	}
	if m := textRe.FindStringSubmatch(base); m != nil {
		nums, err := atoiAll(base, m[2], m[3], m[4], m[5])
		if err != nil {
			return Name{}, err
		}
		return Name{
			Grammar: GrammarText, Prefix: m[1], Part: nums[0],
			ObsNum: nums[1], SubObsNum: nums[2], ScanNum: nums[3],
		}, nil
	}
	if m := timestreamRe.FindStringSubmatch(base); m != nil {
		nums, err := atoiAll(base, m[2], m[3], m[4])
		if err != nil {
			return Name{}, err
		}
		return Name{
			Grammar: GrammarTimestream, Prefix: m[1],
			ObsNum: nums[0], SubObsNum: nums[1], ScanNum: nums[2],
		}, nil
	}
	return Name{}, domain.ErrValidation("filename %q matches no acquisition grammar", base)
}

// Build renders n back to its filename.
func (n Name) Build() (string, error) {
	if err := n.validate(); err != nil {
		return "", err
	}
	switch n.Grammar {
	case GrammarInterface:
		return fmt.Sprintf("%s%d_%06d_%02d_%04d_%s_%d.nc",
			n.Prefix, n.Part, n.ObsNum, n.SubObsNum, n.ScanNum, n.Interface, n.RoachID), nil
	case GrammarText:
		return fmt.Sprintf("%s%d_%06d_%02d_%04d.txt",
			n.Prefix, n.Part, n.ObsNum, n.SubObsNum, n.ScanNum), nil
	default:
		return fmt.Sprintf("%s_timestream_%06d_%02d_%04d.nc",
			n.Prefix, n.ObsNum, n.SubObsNum, n.ScanNum), nil
	}
}

func (n Name) validate() error {
	if n.Grammar < GrammarInterface || n.Grammar > GrammarTimestream {
		return domain.ErrValidation("filename: unknown grammar %d", int(n.Grammar))
	}
	if n.Prefix == "" || strings.Trim(n.Prefix, "abcdefghijklmnopqrstuvwxyz") != "" {
		return domain.ErrValidation("filename: prefix %q must be lowercase letters", n.Prefix)
	}
	if n.Part < 0 || n.ObsNum < 0 || n.SubObsNum < 0 || n.ScanNum < 0 || n.RoachID < 0 {
		return domain.ErrValidation("filename: numeric fields must be non-negative")
	}
	if n.Grammar == GrammarInterface && !interfaceToken(n.Interface) {
		return domain.ErrValidation("filename: interface %q must be a word token", n.Interface)
	}
	return nil
}

func interfaceToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '_' && (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// Key returns the observation key, using master when given and the filename
// prefix otherwise.
func (n Name) Key(master string) domain.ObservationKey {
	if master == "" {
		master = n.Prefix
	}
	return domain.ObservationKey{Master: master, ObsNum: n.ObsNum, SubObsNum: n.SubObsNum, ScanNum: n.ScanNum}
}

// Subtype labels the file family recorded in source metadata.
func (n Name) Subtype() string {
	switch n.Grammar {
	case GrammarInterface:
		return n.Prefix + "_raw"
	case GrammarText:
		return n.Prefix + "_log"
	default:
		return n.Prefix + "_timestream"
	}
}

// DataKind classifies the file by its interface token. Unknown tokens yield 0.
func (n Name) DataKind() domain.DataKindBits {
	if n.Grammar == GrammarTimestream {
		return domain.KindRawTimeStream
	}
	switch strings.ToLower(n.Interface) {
	case "timestream":
		return domain.KindRawTimeStream
	case "vnasweep":
		return domain.KindVnaSweep
	case "targsweep", "targetsweep":
		return domain.KindTargetSweep
	case "tune":
		return domain.KindTune
	}
	return 0
}

func atoiAll(base string, fields ...string) ([]int, error) {
	out := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, domain.ErrValidation("filename %q: %v", base, err)
		}
		out[i] = n
	}
	return out, nil
}
