package builtin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Copy writes literal content to a destination path, skipping the write
// when the destination already holds identical bytes. An optional
// backup of the previous content is kept beside the destination.
func Copy(_ context.Context, params map[string]any, check bool) (map[string]any, error) {
	dest, err := requireString(params, "dest")
	if err != nil {
		return nil, err
	}
	content := stringParam(params, "content", "")

	want := sha256.Sum256([]byte(content))
	checksum := hex.EncodeToString(want[:])

	existing, readErr := os.ReadFile(dest)
	if readErr == nil {
		have := sha256.Sum256(existing)
		if have == want {
			return map[string]any{"changed": false, "dest": dest, "checksum": checksum}, nil
		}
	}

	if check {
		return map[string]any{"changed": true, "dest": dest, "checksum": checksum, "skipped": true}, nil
	}

	out := map[string]any{"changed": true, "dest": dest, "checksum": checksum}

	if boolParam(params, "backup", false) && readErr == nil {
		backupPath := dest + ".bak"
		if err := os.WriteFile(backupPath, existing, 0o600); err != nil {
			return nil, fmt.Errorf("write backup: %w", err)
		}
		out["backup_path"] = backupPath
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("create parent directory: %w", err)
	}

	// Write-then-rename so a crash mid-write never leaves a torn file.
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".copy-*")
	if err != nil {
		return nil, err
	}
	if _, err := tmp.Write([]byte(content)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("replace %s: %w", dest, err)
	}
	return out, nil
}
