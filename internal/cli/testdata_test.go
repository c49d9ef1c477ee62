package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordFixture runs the record command to produce a demo artifact at
// path, returning the command's stdout. Used by other commands' tests
// as a quick way to get a real, schema-valid artifact to operate on
// without hand-building artifact.Run values.
func recordFixture(t *testing.T, path, runID, prompt, response string) string {
	t.Helper()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewRecordCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	args := []string{"--out", path, "--prompt", prompt, "--response", response}
	if runID != "" {
		args = append(args, "--run-id", runID)
	}
	cmd.SetArgs(args)

	require.NoError(t, cmd.Execute())
	return buf.String()
}
