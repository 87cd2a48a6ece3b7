package experiment

import (
	"encoding/json"
	"fmt"
	"os"
)

// Metadata is the experiment metadata file (model_info.json). It is shared
// with external tooling: the process_pids field is how an outside controller
// finds training workers to cancel.
type Metadata struct {
	SampleRate              int    `json:"sample_rate,omitempty"`
	EmbedderModel           string `json:"embedder_model,omitempty"`
	CustomEmbedderModelHash string `json:"custom_embedder_model_hash,omitempty"`
	SpeakersID              int    `json:"speakers_id,omitempty"`
	ProcessPIDs             []int  `json:"process_pids,omitempty"`
}

// ReadMetadata loads model_info.json. A missing file yields empty metadata,
// not an error, so callers can read-modify-write unconditionally.
func (e *Experiment) ReadMetadata() (*Metadata, error) {
	data, err := os.ReadFile(e.MetadataPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &Metadata{}, nil
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &md, nil
}

// WriteMetadata persists metadata atomically (temp file + rename).
func (e *Experiment) WriteMetadata(md *Metadata) error {
	data, err := json.MarshalIndent(md, "", "    ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	path := e.MetadataPath()
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename metadata: %w", err)
	}
	return nil
}

// UpdateMetadata applies fn to the current metadata and writes it back.
func (e *Experiment) UpdateMetadata(fn func(*Metadata)) error {
	md, err := e.ReadMetadata()
	if err != nil {
		return err
	}
	fn(md)
	return e.WriteMetadata(md)
}

// RegisterPIDs records the spawned worker process IDs so external tooling
// can signal them.
func (e *Experiment) RegisterPIDs(pids []int) error {
	return e.UpdateMetadata(func(md *Metadata) {
		md.ProcessPIDs = append([]int(nil), pids...)
	})
}

// RemovePID drops a single worker PID from the registry. Workers call this
// on any terminal state. The read-modify-write is not locked across
// processes: two workers exiting at once can lose one removal. Readers must
// treat registry entries as possibly stale (SignalPIDs skips dead PIDs, the
// orchestrator clears the registry on every terminal path).
func (e *Experiment) RemovePID(pid int) error {
	return e.UpdateMetadata(func(md *Metadata) {
		kept := md.ProcessPIDs[:0]
		for _, p := range md.ProcessPIDs {
			if p != pid {
				kept = append(kept, p)
			}
		}
		md.ProcessPIDs = kept
	})
}

// ClearPIDs empties the registry after a normal orchestrator completion.
func (e *Experiment) ClearPIDs() error {
	return e.UpdateMetadata(func(md *Metadata) {
		md.ProcessPIDs = nil
	})
}
