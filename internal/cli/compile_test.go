package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyxxxxx/prototype-sub001/internal/compiler"
	"github.com/flyxxxxx/prototype-sub001/internal/demo"
)

func runCompileCmd(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCompile_TextOutput(t *testing.T) {
	out, err := runCompileCmd(t, &RootOptions{Format: "text"}, demoManifest)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Compiled 2 class(es)")
	for _, class := range demo.Classes {
		assert.Contains(t, out, "plan "+class+"\n  fingerprint ")
	}
	assert.Contains(t, out, "shout", "configured advisor layer is listed")
}

func TestCompile_JSONOutput(t *testing.T) {
	out, err := runCompileCmd(t, &RootOptions{Format: "json"}, demoManifest)
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Plans, 2)
	for i, p := range resp.Data.Plans {
		assert.Equal(t, demo.Classes[i], p.Class)
		assert.NotEmpty(t, p.Fingerprint)
		assert.Contains(t, p.Description, "fingerprint "+p.Fingerprint)
	}
}

func TestCompile_FingerprintStable(t *testing.T) {
	fingerprints := func() []string {
		out, err := runCompileCmd(t, &RootOptions{Format: "json"}, demoManifest)
		require.NoError(t, err)
		var resp struct {
			Data CompilationResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		var fps []string
		for _, p := range resp.Data.Plans {
			fps = append(fps, p.Fingerprint)
		}
		return fps
	}
	assert.Equal(t, fingerprints(), fingerprints())
}

func TestCompile_ManifestChangesFingerprint(t *testing.T) {
	plain := writeManifest(t, "package manifest\n")

	read := func(path string) map[string]string {
		out, err := runCompileCmd(t, &RootOptions{Format: "json"}, path)
		require.NoError(t, err)
		var resp struct {
			Data CompilationResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		fps := make(map[string]string)
		for _, p := range resp.Data.Plans {
			fps[p.Class] = p.Fingerprint
		}
		return fps
	}

	withAdvisor, without := read(demoManifest), read(plain)
	// Newsletter is untouched by the demo manifest.
	assert.Equal(t, without[demo.Classes[0]], withAdvisor[demo.Classes[0]])
	assert.NotEqual(t, without[demo.Classes[1]], withAdvisor[demo.Classes[1]])
}

func TestCompile_OutputFile(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "plans.json")

	out, err := runCompileCmd(t, &RootOptions{Format: "text"}, demoManifest, "-o", outFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote plans to "+outFile)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var result CompilationResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Len(t, result.Plans, 2)
}

func TestCompile_OutputFileUnwritable(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "missing", "plans.json")

	out, err := runCompileCmd(t, &RootOptions{Format: "text"}, demoManifest, "--output", outFile)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeWriteFailed+"]")
}

func TestCompile_InvalidManifest(t *testing.T) {
	out, err := runCompileCmd(t, &RootOptions{Format: "text"}, invalidManifest)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrUnknownPool)
	assert.NotContains(t, out, "✓ Compiled")
}
