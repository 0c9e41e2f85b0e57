// Package mutate wraps an external file-based fuzzing tool: it writes
// a key's valid sample values out as files, invokes the tool once per
// key, and reads the generated cases back in.
//
// The tool is assumed to behave like radamsa: given "-o <dir>/%n.fuzz
// -n <count> -r <in-dir>", it reads every file under <in-dir> and
// writes exactly <count> output files into <dir>, named by an
// incrementing counter with a ".fuzz" suffix.
package mutate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/quay/zlog"

	"github.com/WithSecureOpenSource/mittn"
	"github.com/WithSecureOpenSource/mittn/value"
)

// Mutator runs an external mutation tool over collected values.
type Mutator struct {
	// BinaryPath is the path to the mutation tool's executable.
	BinaryPath string
	// ScratchDir is the parent directory under which per-call temp
	// directories are created. Empty means the OS default (os.TempDir).
	ScratchDir string
}

// Fuzz runs the mutation tool over every key in vs, producing n
// mutated byte strings per key. A key with no collected values of its
// own falls back to the catch-all bucket, mirroring [value.Values.Bucket].
//
// The returned map has exactly the same key set as vs.Keys plus a
// catch-all entry under the empty string, so callers that need a
// per-key anomaly map can build one directly from the result.
func (m Mutator) Fuzz(ctx context.Context, vs *value.Values, n int) (map[string][]value.Value, error) {
	out := make(map[string][]value.Value, len(vs.Keys)+1)

	fuzzNull, err := m.fuzzOne(ctx, vs.Null, n)
	if err != nil {
		return nil, err
	}
	out[""] = fuzzNull

	for _, key := range vs.Keys {
		bucket := vs.Bucket(key)
		if len(bucket) == 0 {
			out[key] = fuzzNull
			continue
		}
		fuzzed, err := m.fuzzOne(ctx, bucket, n)
		if err != nil {
			return nil, err
		}
		out[key] = fuzzed
	}
	return out, nil
}

// fuzzOne runs the mutation tool once over valuelist and returns n
// mutated byte strings.
func (m Mutator) fuzzOne(ctx context.Context, valuelist []value.Value, n int) ([]value.Value, error) {
	if len(valuelist) == 0 || n <= 0 {
		return nil, nil
	}

	inDir, err := os.MkdirTemp(m.ScratchDir, "mittn-in-")
	if err != nil {
		return nil, fmt.Errorf("mutate: create input scratch dir: %w", err)
	}
	defer os.RemoveAll(inDir)

	outDir, err := os.MkdirTemp(m.ScratchDir, "mittn-out-")
	if err != nil {
		return nil, fmt.Errorf("mutate: create output scratch dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	for i, v := range valuelist {
		name := filepath.Join(inDir, fmt.Sprintf("%d.case", i))
		// The mutation tool only operates on byte strings, so numbers
		// and booleans are rendered through Stringify first. Static
		// injection, not mutation, is what covers their edge values.
		if err := os.WriteFile(name, value.Stringify(v), 0o600); err != nil {
			return nil, fmt.Errorf("mutate: write sample %d: %w", i, err)
		}
	}

	cmd := exec.CommandContext(ctx, m.BinaryPath,
		"-o", filepath.Join(outDir, "%n.fuzz"),
		"-n", fmt.Sprint(n),
		"-r", inDir,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var pathErr *exec.Error
		if errors.As(err, &pathErr) || errors.Is(err, os.ErrNotExist) {
			return nil, &mittn.Error{
				Op:      "mutate.Fuzz",
				Kind:    mittn.ErrFatal,
				Message: fmt.Sprintf("mutation tool %q is not available", m.BinaryPath),
				Inner:   err,
			}
		}
		return nil, &mittn.Error{
			Op:      "mutate.Fuzz",
			Kind:    mittn.ErrFatal,
			Message: fmt.Sprintf("mutation tool %q exited non-zero (stderr: %s)", m.BinaryPath, stderr.Bytes()),
			Inner:   err,
		}
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("mutate: read output scratch dir: %w", err)
	}
	cases := make([]value.Value, 0, len(entries))
	for _, e := range entries {
		b, err := os.ReadFile(filepath.Join(outDir, e.Name()))
		if err != nil {
			zlog.Warn(ctx).Str("file", e.Name()).Err(err).Msg("mutate: could not read generated case, skipping")
			continue
		}
		cases = append(cases, value.Bytes(b))
	}
	return cases, nil
}
