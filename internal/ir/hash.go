package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainEvent      = "croprot/event/v1"
	DomainCheckpoint = "croprot/checkpoint/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content-addressed id of an event.
// The id covers field, kind, crop and seq; outcome and resulting history
// are derived from those and the prior state, so they are left out.
func EventID(fieldID string, kind EventKind, crop string, seq int64) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"field_id": fieldID,
		"kind":     string(kind),
		"crop":     crop,
		"seq":      seq,
	})
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// CheckpointHash fingerprints a checkpoint's history and seq.
// Stores keep it next to the checkpoint and recompute it on load to catch
// rows edited out of band.
func CheckpointHash(cp Checkpoint) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"field_id":       cp.FieldID,
		"previous_crop1": cp.History.PreviousCrop1,
		"previous_crop2": cp.History.PreviousCrop2,
		"seq":            cp.Seq,
	})
	if err != nil {
		return "", fmt.Errorf("CheckpointHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCheckpoint, canonical), nil
}
