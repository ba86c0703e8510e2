package ddl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIdentifier_CatalogNames(t *testing.T) {
	for _, name := range []string{
		"catalog",                       // default attach alias
		"data_prod", "data_prod_source", // attached catalog tables
		"data_prod_assoc", "event_log",
		"sqlite", "parquet", "httpfs", // extensions
		"raw_obs_2025", "_scratch", "TimeStreams", // parquet view names
		strings.Repeat("v", maxIdentifierLen),
	} {
		assert.NoError(t, ValidateIdentifier(name), name)
	}
}

func TestValidateIdentifier_Rejects(t *testing.T) {
	tests := map[string]string{
		"":                                      "name is required",
		strings.Repeat("v", maxIdentifierLen+1): "at most 128 characters",
		"2025_scans":                            "must match",
		"raw-obs":                               "must match",
		"catalog.data_prod":                     "must match",
		"toltec*.parquet":                       "must match",
		"view name":                             "must match",
		`obs"; DETACH catalog; --`:              "must match",
	}
	for input, want := range tests {
		err := ValidateIdentifier(input)
		require.Error(t, err, input)
		assert.Contains(t, err.Error(), want, input)
	}
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"catalog"`, QuoteIdentifier("catalog"))
	assert.Equal(t, `"RawObs"`, QuoteIdentifier("RawObs"))
	assert.Equal(t, `"a""b"`, QuoteIdentifier(`a"b`))
	assert.Equal(t, `""`, QuoteIdentifier(""))
}

func TestQuoteLiteral_ParquetGlobs(t *testing.T) {
	tests := map[string]string{
		"/data_lmt/toltec/**/*.parquet":  "'/data_lmt/toltec/**/*.parquet'",
		"s3://lmt-archive/toltec/*.parq": "'s3://lmt-archive/toltec/*.parq'",
		"/tmp/obs' OR 1=1":               "'/tmp/obs'' OR 1=1'",
		`C:\exports\data_prod.parquet`:   `'C:\exports\data_prod.parquet'`,
		"":                               "''",
	}
	for input, want := range tests {
		assert.Equal(t, want, QuoteLiteral(input), input)
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "absolute", input: "/data_lmt/toltec/ics/toltec0"},
		{name: "glob", input: "/data/**/*.parquet"},
		{name: "s3", input: "s3://bucket/prefix/*.parquet"},
		{name: "empty", input: "", wantErr: "path is required"},
		{name: "blank", input: "  ", wantErr: "path is required"},
		{name: "nul", input: "/tmp/a\x00b", wantErr: "NUL byte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.input)
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
