package state

import (
	"encoding/json"
	"os"
	"time"
)

// Envelope is the JSON output format emitted on stdout for every
// machine-readable command (spec §4.6, §6).
type Envelope struct {
	GeneratedAt  time.Time `json:"generated_at"`
	Version      string    `json:"version"`
	OutputFormat string    `json:"output_format"`
	Command      string    `json:"command"`
	Mode         string    `json:"mode"`
	Data         any       `json:"data"`
	Summary      any       `json:"summary,omitempty"`
}

// NewEnvelope builds an Envelope with output_format fixed to "json" and
// generated_at stamped from now.
func NewEnvelope(version, command, mode string, data any, summary any) Envelope {
	return Envelope{
		GeneratedAt:  time.Now().UTC(),
		Version:      version,
		OutputFormat: "json",
		Command:      command,
		Mode:         mode,
		Data:         data,
		Summary:      summary,
	}
}

// WriteTo marshals the envelope as indented JSON followed by a trailing
// newline, matching ru's LF-terminated UTF-8 persisted-state convention
// (spec §6).
func (e Envelope) WriteTo(w *os.File) error {
	raw, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	_, err = w.Write(raw)
	return err
}
