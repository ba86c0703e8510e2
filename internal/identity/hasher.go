// Package identity derives content-addressable product identifiers and the
// auxiliary hashes used to deduplicate files and reduction tasks.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"toltec-dpdb/internal/domain"
)

// Fields is the identity tuple of a product. Only fields that define
// uniqueness for the base type belong here.
type Fields map[string]interface{}

// Hash returns the product ID for baseType and fields: the hex SHA-256 of the
// canonical JSON object {"base_type": baseType, ...fields}.
func Hash(baseType domain.ProductTypeLabel, fields Fields) (string, error) {
	if baseType == "" {
		return "", domain.ErrValidation("identity hash: base type is required")
	}
	if _, clash := fields["base_type"]; clash {
		return "", domain.ErrValidation("identity hash: field name base_type is reserved")
	}

	obj := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		obj[k] = v
	}
	obj["base_type"] = string(baseType)

	canon, err := Canonical(obj)
	if err != nil {
		return "", fmt.Errorf("identity hash: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// MustHash is Hash for static identity tuples known to be valid.
func MustHash(baseType domain.ProductTypeLabel, fields Fields) string {
	id, err := Hash(baseType, fields)
	if err != nil {
		panic(err)
	}
	return id
}

// Canonical serializes v as compact JSON with object keys sorted at every
// level. encoding/json already sorts map keys; structs are normalized by a
// round trip through interface{}.
func Canonical(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// ContentHash hashes file bytes, returning "sha256:<hex>".
func ContentHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

// ParamsHash returns the first 32 hex characters of the canonical hash of a
// task's parameters.
func ParamsHash(params map[string]interface{}) (string, error) {
	canon, err := Canonical(params)
	if err != nil {
		return "", fmt.Errorf("params hash: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])[:32], nil
}

// InputSetHash hashes a set of product IDs independent of their order.
func InputSetHash(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}
