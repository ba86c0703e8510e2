package ddl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachSQLite(t *testing.T) {
	tests := []struct {
		name     string
		alias    string
		path     string
		readOnly bool
		want     string
		wantErr  string
	}{
		{
			name:     "read_only",
			alias:    "catalog",
			path:     "/data/dpdb.sqlite",
			readOnly: true,
			want:     `ATTACH '/data/dpdb.sqlite' AS "catalog" (TYPE sqlite, READ_ONLY)`,
		},
		{
			name:  "writable",
			alias: "catalog",
			path:  "/data/dpdb.sqlite",
			want:  `ATTACH '/data/dpdb.sqlite' AS "catalog" (TYPE sqlite)`,
		},
		{
			name:     "quote_in_path",
			alias:    "catalog",
			path:     "/data/o'brien.sqlite",
			readOnly: true,
			want:     `ATTACH '/data/o''brien.sqlite' AS "catalog" (TYPE sqlite, READ_ONLY)`,
		},
		{
			name:    "bad_alias",
			alias:   "cat; DROP",
			path:    "/x",
			wantErr: "invalid catalog alias",
		},
		{
			name:    "empty_path",
			alias:   "catalog",
			path:    " ",
			wantErr: "invalid sqlite path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AttachSQLite(tt.alias, tt.path, tt.readOnly)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtensions(t *testing.T) {
	got, err := InstallExtension("sqlite")
	require.NoError(t, err)
	assert.Equal(t, "INSTALL sqlite", got)

	got, err = LoadExtension("httpfs")
	require.NoError(t, err)
	assert.Equal(t, "LOAD httpfs", got)

	_, err = LoadExtension("x y")
	assert.Error(t, err)
}

func TestScanParquet(t *testing.T) {
	got, err := ScanParquet("/data/*.parquet", 10)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM read_parquet('/data/*.parquet', union_by_name = true) LIMIT 10`, got)

	got, err = ScanParquet("s3://bucket/it's/*.parquet", 0)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM read_parquet('s3://bucket/it''s/*.parquet', union_by_name = true)`, got)

	_, err = ScanParquet("", 0)
	assert.ErrorContains(t, err, "invalid parquet glob")
}

func TestJoinCatalogProducts(t *testing.T) {
	got, err := JoinCatalogProducts("catalog", "/data/*.parquet", "product_id")
	require.NoError(t, err)
	assert.Contains(t, got, `FROM read_parquet('/data/*.parquet', union_by_name = true) AS f`)
	assert.Contains(t, got, `JOIN "catalog".data_prod AS p ON f."product_id" = p.pk`)

	_, err = JoinCatalogProducts("catalog", "/data/*.parquet", "id; --")
	assert.ErrorContains(t, err, "invalid join column")
}

func TestCreateParquetView(t *testing.T) {
	got, err := CreateParquetView("timestreams", "/data/ts/*.parquet")
	require.NoError(t, err)
	assert.Equal(t, `CREATE OR REPLACE VIEW "timestreams" AS SELECT * FROM read_parquet('/data/ts/*.parquet', union_by_name = true)`, got)

	_, err = CreateParquetView("bad-name", "/x")
	assert.ErrorContains(t, err, "invalid view name")
}

func TestCopyTableToParquet(t *testing.T) {
	got, err := CopyTableToParquet("catalog", "data_prod", "/export/data_prod.parquet")
	require.NoError(t, err)
	assert.Equal(t, `COPY (SELECT * FROM "catalog"."data_prod") TO '/export/data_prod.parquet' (FORMAT parquet)`, got)

	_, err = CopyTableToParquet("catalog", "data_prod", "")
	assert.ErrorContains(t, err, "invalid output path")
}

func TestCreateS3Secret(t *testing.T) {
	got, err := CreateS3Secret("dpdb_s3", "AKID", "sec'ret", "minio:9000", "us-east-1", "path")
	require.NoError(t, err)
	assert.Equal(t, "CREATE OR REPLACE SECRET \"dpdb_s3\" (\n\tTYPE S3,\n\tKEY_ID 'AKID',\n\tSECRET 'sec''ret',\n\tENDPOINT 'minio:9000',\n\tREGION 'us-east-1',\n\tURL_STYLE 'path'\n)", got)

	got, err = CreateS3Secret("dpdb_s3", "AKID", "s", "", "", "")
	require.NoError(t, err)
	assert.NotContains(t, got, "ENDPOINT")

	_, err = CreateS3Secret("dpdb_s3", "", "", "", "", "")
	assert.ErrorContains(t, err, "key id and secret are required")
}

func TestDropSecretAndDetach(t *testing.T) {
	got, err := DropSecret("dpdb_s3")
	require.NoError(t, err)
	assert.Equal(t, `DROP SECRET IF EXISTS "dpdb_s3"`, got)

	got, err = DetachCatalog("catalog")
	require.NoError(t, err)
	assert.Equal(t, `DETACH "catalog"`, got)
}
