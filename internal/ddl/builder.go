// Package ddl builds the DuckDB statements of the hybrid query engine:
// extension loading, read-only catalog attachment, parquet scans and exports,
// and object-store secrets.
package ddl

import (
	"fmt"
	"strings"
)

// InstallExtension returns INSTALL <name>.
func InstallExtension(name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid extension name: %w", err)
	}
	return "INSTALL " + name, nil
}

// LoadExtension returns LOAD <name>.
func LoadExtension(name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid extension name: %w", err)
	}
	return "LOAD " + name, nil
}

// AttachSQLite returns a statement attaching a SQLite file under alias.
//
//	ATTACH '<path>' AS "<alias>" (TYPE sqlite, READ_ONLY)
func AttachSQLite(alias, path string, readOnly bool) (string, error) {
	if err := ValidateIdentifier(alias); err != nil {
		return "", fmt.Errorf("invalid catalog alias: %w", err)
	}
	if err := ValidatePath(path); err != nil {
		return "", fmt.Errorf("invalid sqlite path: %w", err)
	}
	opts := "TYPE sqlite"
	if readOnly {
		opts += ", READ_ONLY"
	}
	return fmt.Sprintf("ATTACH %s AS %s (%s)", QuoteLiteral(path), QuoteIdentifier(alias), opts), nil
}

// DetachCatalog returns DETACH "<alias>".
func DetachCatalog(alias string) (string, error) {
	if err := ValidateIdentifier(alias); err != nil {
		return "", fmt.Errorf("invalid catalog alias: %w", err)
	}
	return "DETACH " + QuoteIdentifier(alias), nil
}

// ReadParquet returns a table function expression over a file glob.
//
//	read_parquet('<glob>', union_by_name = true)
func ReadParquet(glob string) (string, error) {
	if err := ValidatePath(glob); err != nil {
		return "", fmt.Errorf("invalid parquet glob: %w", err)
	}
	return fmt.Sprintf("read_parquet(%s, union_by_name = true)", QuoteLiteral(glob)), nil
}

// ScanParquet returns SELECT * over a parquet glob, bounded by limit when positive.
func ScanParquet(glob string, limit int) (string, error) {
	src, err := ReadParquet(glob)
	if err != nil {
		return "", err
	}
	stmt := "SELECT * FROM " + src
	if limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", limit)
	}
	return stmt, nil
}

// JoinCatalogProducts returns a query joining parquet rows with the attached
// catalog's products on column = data_prod.pk. Product columns are prefixed
// with "dp_".
func JoinCatalogProducts(alias, glob, column string) (string, error) {
	if err := ValidateIdentifier(alias); err != nil {
		return "", fmt.Errorf("invalid catalog alias: %w", err)
	}
	if err := ValidateIdentifier(column); err != nil {
		return "", fmt.Errorf("invalid join column: %w", err)
	}
	src, err := ReadParquet(glob)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`SELECT f.*, p.pk AS dp_pk, t.label AS dp_type, p.lifecycle_status AS dp_status,
       p.availability_state AS dp_availability, p.meta AS dp_meta
FROM %s AS f
JOIN %s.data_prod AS p ON f.%s = p.pk
JOIN %s.data_prod_type AS t ON t.pk = p.data_prod_type_fk`,
		src, QuoteIdentifier(alias), QuoteIdentifier(column), QuoteIdentifier(alias)), nil
}

// CreateParquetView returns CREATE OR REPLACE VIEW "<name>" AS SELECT * FROM read_parquet(...).
func CreateParquetView(name, glob string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid view name: %w", err)
	}
	src, err := ReadParquet(glob)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s", QuoteIdentifier(name), src), nil
}

// CopyTableToParquet returns a COPY of an attached table into one parquet file.
//
//	COPY (SELECT * FROM "<alias>"."<table>") TO '<path>' (FORMAT parquet)
func CopyTableToParquet(alias, table, path string) (string, error) {
	if err := ValidateIdentifier(alias); err != nil {
		return "", fmt.Errorf("invalid catalog alias: %w", err)
	}
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if err := ValidatePath(path); err != nil {
		return "", fmt.Errorf("invalid output path: %w", err)
	}
	return fmt.Sprintf("COPY (SELECT * FROM %s.%s) TO %s (FORMAT parquet)",
		QuoteIdentifier(alias), QuoteIdentifier(table), QuoteLiteral(path)), nil
}

// CreateS3Secret returns a DuckDB DDL statement to create an S3 secret.
// Empty endpoint, region and url style are omitted.
func CreateS3Secret(name, keyID, secret, endpoint, region, urlStyle string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid secret name: %w", err)
	}
	if keyID == "" || secret == "" {
		return "", fmt.Errorf("key id and secret are required")
	}
	parts := []string{
		"TYPE S3",
		"KEY_ID " + QuoteLiteral(keyID),
		"SECRET " + QuoteLiteral(secret),
	}
	if endpoint != "" {
		parts = append(parts, "ENDPOINT "+QuoteLiteral(endpoint))
	}
	if region != "" {
		parts = append(parts, "REGION "+QuoteLiteral(region))
	}
	if urlStyle != "" {
		parts = append(parts, "URL_STYLE "+QuoteLiteral(urlStyle))
	}
	return fmt.Sprintf("CREATE OR REPLACE SECRET %s (\n\t%s\n)", QuoteIdentifier(name), strings.Join(parts, ",\n\t")), nil
}

// DropSecret returns DROP SECRET IF EXISTS "<name>".
func DropSecret(name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid secret name: %w", err)
	}
	return "DROP SECRET IF EXISTS " + QuoteIdentifier(name), nil
}
