package domain

import (
	"strings"
	"time"
)

// SeverityNamespace holds the seeded severity flags.
const SeverityNamespace = "severity"

// Seeded severity labels, in increasing order.
var SeverityLabels = []string{"INFO", "WARN", "BLOCK", "CRITICAL"}

// DefaultAsserter is recorded when a caller does not name one.
const DefaultAsserter = "system"

// Flag is a namespaced quality marker.
type Flag struct {
	ID          int64
	Namespace   string
	Label       string
	Description string
}

// Ref returns the flag's namespace:label reference.
func (f Flag) Ref() FlagRef { return FlagRef{Namespace: f.Namespace, Label: f.Label} }

// FlagRef identifies a flag by (namespace, label).
type FlagRef struct {
	Namespace string
	Label     string
}

func (r FlagRef) String() string { return r.Namespace + ":" + r.Label }

// ParseFlagRef parses "namespace:label".
func ParseFlagRef(s string) (FlagRef, error) {
	ns, label, ok := strings.Cut(s, ":")
	if !ok || ns == "" || label == "" {
		return FlagRef{}, ErrValidation("invalid flag reference %q: expected namespace:label", s)
	}
	return FlagRef{Namespace: ns, Label: label}, nil
}

// FlagAssignment is the latest assertion of a flag on a product.
type FlagAssignment struct {
	ProductID  string
	Flag       FlagRef
	AssertedBy string
	AssertedAt time.Time
	Context    map[string]string
}
