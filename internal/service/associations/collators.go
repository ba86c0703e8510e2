// Package associations groups raw observations into calibration, drive fit
// and focus groups and records the membership as provenance edges.
package associations

import (
	"strings"

	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/identity"
)

// Observation is a raw observation as seen by the collators.
type Observation struct {
	ID           string
	Meta         domain.RawObsMeta
	Availability domain.AvailabilityState
}

// Key returns the observation key of o.
func (o Observation) Key() domain.ObservationKey { return o.Meta.Key() }

// Group is one candidate group produced by a Collator. Members are ordered
// by observation key.
type Group struct {
	ID      string
	Type    domain.ProductTypeLabel
	Edge    domain.EdgeTypeLabel
	Meta    domain.Metadata
	Members []Observation
}

// Collator turns the time-ordered observations of one master into groups.
type Collator interface {
	Name() string
	Edge() domain.EdgeTypeLabel
	Collate(obs []Observation) []Group
}

// DefaultCollators returns the calibration, drive fit and focus collators.
func DefaultCollators() []Collator {
	return []Collator{CalGroupCollator{}, DrivefitCollator{}, FocusGroupCollator{}}
}

// groupCounter numbers groups that start at the same (master, obsnum).
type groupCounter map[int]int

func (c groupCounter) next(obsnum int) int {
	c[obsnum]++
	return c[obsnum]
}

// CalGroupCollator starts a group at every VNA sweep and appends the target
// sweeps and tunes that follow it. Sweeps before the first VNA sweep and
// groups with a single member are dropped.
type CalGroupCollator struct{}

func (CalGroupCollator) Name() string               { return "cal_group" }
func (CalGroupCollator) Edge() domain.EdgeTypeLabel { return domain.EdgeCalGroupRawObs }

func (c CalGroupCollator) Collate(obs []Observation) []Group {
	var runs [][]Observation
	for _, o := range obs {
		kind := o.Meta.DataKind
		if kind&domain.KindRawSweep == 0 {
			continue
		}
		if kind&domain.KindVnaSweep != 0 {
			runs = append(runs, []Observation{o})
			continue
		}
		if len(runs) > 0 {
			runs[len(runs)-1] = append(runs[len(runs)-1], o)
		}
	}

	counter := groupCounter{}
	var out []Group
	for _, run := range runs {
		if len(run) < 2 {
			continue
		}
		start := run[0].Meta
		uid := identity.CalGroupUID(start.Master, start.ObsNum, counter.next(start.ObsNum))
		out = append(out, Group{
			ID:   groupID(domain.TypeCalGroup, uid),
			Type: domain.TypeCalGroup,
			Edge: c.Edge(),
			Meta: domain.CalGroupMeta{
				Name: uid, Master: start.Master, ObsNum: start.ObsNum,
				NItems: len(run), GroupType: "auto",
			},
			Members: run,
		})
	}
	return out
}

// DrivefitCollator groups the target sweeps of each obsnum.
type DrivefitCollator struct{}

func (DrivefitCollator) Name() string               { return "drivefit" }
func (DrivefitCollator) Edge() domain.EdgeTypeLabel { return domain.EdgeDrivefitRawObs }

func (c DrivefitCollator) Collate(obs []Observation) []Group {
	var order []int
	byObsNum := map[int][]Observation{}
	for _, o := range obs {
		if o.Meta.DataKind&domain.KindTargetSweep == 0 {
			continue
		}
		if _, ok := byObsNum[o.Meta.ObsNum]; !ok {
			order = append(order, o.Meta.ObsNum)
		}
		byObsNum[o.Meta.ObsNum] = append(byObsNum[o.Meta.ObsNum], o)
	}

	var out []Group
	for _, obsnum := range order {
		members := byObsNum[obsnum]
		if len(members) < 2 {
			continue
		}
		master := members[0].Meta.Master
		uid := identity.GroupUID(master, obsnum, 1, "drivefit")
		out = append(out, Group{
			ID:   groupID(domain.TypeDrivefit, uid),
			Type: domain.TypeDrivefit,
			Edge: c.Edge(),
			Meta: domain.DrivefitMeta{
				Name: uid, Master: master, ObsNum: obsnum, NItems: len(members),
			},
			Members: members,
		})
	}
	return out
}

// FocusGroupCollator groups consecutive observations whose observing goal
// is "focus". Any other observation ends the run.
type FocusGroupCollator struct{}

func (FocusGroupCollator) Name() string               { return "focus_group" }
func (FocusGroupCollator) Edge() domain.EdgeTypeLabel { return domain.EdgeFocusGroupRawObs }

func (c FocusGroupCollator) Collate(obs []Observation) []Group {
	var runs [][]Observation
	var cur []Observation
	for _, o := range obs {
		if strings.EqualFold(strings.TrimSpace(o.Meta.ObsGoal), "focus") {
			cur = append(cur, o)
			continue
		}
		if len(cur) > 0 {
			runs = append(runs, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		runs = append(runs, cur)
	}

	counter := groupCounter{}
	var out []Group
	for _, run := range runs {
		if len(run) < 2 {
			continue
		}
		start := run[0].Meta
		uid := identity.GroupUID(start.Master, start.ObsNum, counter.next(start.ObsNum), "focus")
		out = append(out, Group{
			ID:   groupID(domain.TypeFocusGroup, uid),
			Type: domain.TypeFocusGroup,
			Edge: c.Edge(),
			Meta: domain.FocusGroupMeta{
				Name: uid, Master: start.Master, ObsNum: start.ObsNum, NItems: len(run),
			},
			Members: run,
		})
	}
	return out
}

func groupID(typ domain.ProductTypeLabel, uid string) string {
	return identity.MustHash(typ, identity.Fields{"uid": uid})
}
