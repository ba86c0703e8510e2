package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"toltec-dpdb/internal/filename"
)

// envVars are cleared so a developer's shell cannot leak into a test.
var envVars = []string{
	"DPDB_CATALOG_PATH", "DPDB_INSTRUMENT_FILE", "DPDB_POLL_SCHEDULE", "DPDB_READ_POOL_SIZE",
	"DPDB_TELEMETRY_DSN", "DPDB_TELEMETRY_URL", "DPDB_TELEMETRY_TIMEOUT", "DPDB_TELEMETRY_RETRIES",
	"DPDB_TELEMETRY_RPS", "DPDB_OUTPUT", "ENV", "LOG_LEVEL", "LOG_FORMAT", "LISTEN_ADDR",
	"JWT_SECRET", "OIDC_ISSUER_URL", "OIDC_AUDIENCE", "S3_KEY_ID", "S3_SECRET", "S3_ENDPOINT",
	"S3_REGION", "AZURE_STORAGE_ACCOUNT_URL", "AZURE_STORAGE_KEY", "GCS_ENDPOINT", "GCS_CREDENTIALS_FILE",
}

// testEnv is a scratch catalog, telemetry database and data root described by
// a three-part instrument profile.
type testEnv struct {
	t          *testing.T
	catalog    string
	telemetry  string
	instrument string
	root       string
}

const testProfile = `name: bench
expected_parts: 3
groups:
  - {name: a, first: 0, last: 1}
  - {name: b, first: 2, last: 2}
locations:
  - label: lmt
    type: filesystem
    root_uri: file://%s
`

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	root := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "toltec"), 0o755))
	instrument := filepath.Join(dir, "bench.yaml")
	require.NoError(t, os.WriteFile(instrument, []byte(fmt.Sprintf(testProfile, root)), 0o644))
	return &testEnv{
		t:          t,
		catalog:    filepath.Join(dir, "catalog.sqlite"),
		telemetry:  filepath.Join(dir, "toltec.sqlite"),
		instrument: instrument,
		root:       root,
	}
}

// run executes one dpdb invocation with json output and returns the exit
// code and stdout.
func (e *testEnv) run(args ...string) (int, string) {
	e.t.Helper()
	root, a := newRootCmd()
	base := []string{
		"--env-file", filepath.Join(e.t.TempDir(), "missing.env"),
		"--catalog", e.catalog,
		"--instrument", e.instrument,
		"-o", "json",
	}
	if e.telemetry != "" {
		base = append(base, "--telemetry-dsn", e.telemetry)
	}
	root.SetArgs(append(base, args...))
	var stdout, stderr bytes.Buffer
	code := execute(root, a, &stdout, &stderr)
	return code, stdout.String()
}

// runJSON runs a command that must succeed and decodes its output.
func (e *testEnv) runJSON(args ...string) map[string]interface{} {
	e.t.Helper()
	code, out := e.run(args...)
	require.Equal(e.t, exitOK, code, out)
	var v map[string]interface{}
	require.NoError(e.t, json.Unmarshal([]byte(out), &v), out)
	return v
}

// runError runs a command that must fail with code and returns its error object.
func (e *testEnv) runError(code int, args ...string) map[string]interface{} {
	e.t.Helper()
	got, out := e.run(args...)
	require.Equal(e.t, code, got, out)
	var v map[string]interface{}
	require.NoError(e.t, json.Unmarshal([]byte(out), &v), out)
	return v
}

// writePart creates the interface file of one part and returns its path.
func (e *testEnv) writePart(obsnum, part int) string {
	e.t.Helper()
	name, err := filename.Name{
		Grammar: filename.GrammarInterface, Prefix: "toltec", Part: part,
		ObsNum: obsnum, Interface: "timestream", RoachID: part,
	}.Build()
	require.NoError(e.t, err)
	path := filepath.Join(e.root, "toltec", name)
	require.NoError(e.t, os.WriteFile(path, []byte("nc"), 0o644))
	return path
}
