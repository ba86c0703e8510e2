package completion

import (
	"strconv"
	"strings"

	"toltec-dpdb/internal/domain"
)

// Group is an inclusive range of part indices belonging to one sub-array.
type Group struct {
	Name  string `yaml:"name" json:"name"`
	First int    `yaml:"first" json:"first"`
	Last  int    `yaml:"last" json:"last"`
}

// DefaultGroups is the TolTEC 13-part layout: three detector arrays.
var DefaultGroups = []Group{
	{Name: "a1100", First: 0, Last: 6},
	{Name: "a1400", First: 7, Last: 10},
	{Name: "a2000", First: 11, Last: 12},
}

// GroupTable maps part indices to group names. It is ordered, contiguous and
// total over [0, Expected).
type GroupTable struct {
	groups []Group
	byPart []int
}

// NewGroupTable validates groups against the expected part count. Groups must
// start at 0, follow each other without gaps or overlap, and end at
// expected-1.
func NewGroupTable(expected int, groups []Group) (*GroupTable, error) {
	if expected <= 0 {
		return nil, domain.ErrValidation("expected part count must be positive, got %d", expected)
	}
	if len(groups) == 0 {
		return nil, domain.ErrValidation("part group table is empty")
	}
	t := &GroupTable{
		groups: append([]Group(nil), groups...),
		byPart: make([]int, expected),
	}
	next := 0
	seen := make(map[string]bool, len(groups))
	for i, g := range groups {
		switch {
		case g.Name == "":
			return nil, domain.ErrValidation("part group %d has no name", i)
		case seen[g.Name]:
			return nil, domain.ErrValidation("part group %q defined twice", g.Name)
		case g.First != next:
			return nil, domain.ErrValidation("part group %q starts at %d, expected %d", g.Name, g.First, next)
		case g.Last < g.First:
			return nil, domain.ErrValidation("part group %q ends before it starts", g.Name)
		case g.Last >= expected:
			return nil, domain.ErrValidation("part group %q ends at %d beyond part count %d", g.Name, g.Last, expected)
		}
		seen[g.Name] = true
		for p := g.First; p <= g.Last; p++ {
			t.byPart[p] = i
		}
		next = g.Last + 1
	}
	if next != expected {
		return nil, domain.ErrValidation("part groups cover [0, %d), expected [0, %d)", next, expected)
	}
	return t, nil
}

// Expected returns the number of parts the table covers.
func (t *GroupTable) Expected() int { return len(t.byPart) }

// Groups returns the groups in order.
func (t *GroupTable) Groups() []Group { return append([]Group(nil), t.groups...) }

// GroupOf returns the group name of part. Parts outside [0, Expected) are
// rejected, never clamped.
func (t *GroupTable) GroupOf(part int) (string, error) {
	if err := t.CheckPart(part); err != nil {
		return "", err
	}
	return t.groups[t.byPart[part]].Name, nil
}

// CheckPart returns a ValidationError when part is out of range.
func (t *GroupTable) CheckPart(part int) error {
	if part < 0 || part >= len(t.byPart) {
		return domain.ErrValidation("part %d out of range [0, %d)", part, len(t.byPart))
	}
	return nil
}

// ParsePart parses a textual part identifier and checks its range.
func (t *GroupTable) ParsePart(s string) (int, error) {
	part, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, domain.ErrValidation("malformed part identifier %q", s)
	}
	if err := t.CheckPart(part); err != nil {
		return 0, err
	}
	return part, nil
}
