package gate

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"time"
)

// manifest is the bundle's self-description, read by tooling and by the
// gate runtime on startup.
type manifest struct {
	RuntimeVersion string   `json:"runtime_version"`
	ActionIDs      []string `json:"action_ids"`
}

// writeArchive assembles the bundle artifact: a tar archive holding the
// runtime entry point, a manifest, and one content file per action.
// Entry order, modes, and timestamps are fixed so that identical inputs
// yield byte-identical archives.
func writeArchive(runtimeVersion string, runnerPayload []byte, sortedIDs []string, sources map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	manifestData, err := json.Marshal(manifest{RuntimeVersion: runtimeVersion, ActionIDs: sortedIDs})
	if err != nil {
		return nil, err
	}

	if err := writeEntry(tw, "manifest.json", 0o644, manifestData); err != nil {
		return nil, err
	}
	if err := writeEntry(tw, "gate-runner", 0o755, runnerPayload); err != nil {
		return nil, err
	}
	for _, id := range sortedIDs {
		if err := writeEntry(tw, "actions/"+id, 0o644, sources[id]); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeEntry(tw *tar.Writer, name string, mode int64, data []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    mode,
		Size:    int64(len(data)),
		ModTime: time.Unix(0, 0).UTC(),
		Format:  tar.FormatGNU,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}
