package domain

import (
	"bytes"
	"encoding/json"
)

// priorityMicros is the per-priority-level advance in microseconds: a
// priority of P advances the request by P*priorityMicros microseconds
// against concurrently arriving lower-priority requests.
const priorityMicros = 10_000

// Score computes the ordered-queue score for a request observed at
// nowMicros with the given priority. Lower score pops first; FIFO within
// a priority band falls out of nowMicros dominating the subtraction.
func Score(nowMicros int64, priority int) float64 {
	return float64(nowMicros) - float64(priority)*priorityMicros
}

// CanonicalMember encodes req as canonical JSON: field order is fixed by
// the struct's declared tag order, so the same logical request always
// marshals to byte-identical bytes. That byte-stability is what lets a
// retry with the same idempotency key update an existing queue member's
// score in place instead of inserting a duplicate.
func CanonicalMember(req QueuedRequest) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(req); err != nil {
		return "", err
	}
	// Encode appends a trailing newline; trim it so the member is stable
	// regardless of how it's later re-encoded for comparison.
	b := buf.Bytes()
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	return string(b), nil
}

// DecodeMember reverses CanonicalMember for a queue member popped off the
// ordered set.
func DecodeMember(member string) (QueuedRequest, error) {
	var req QueuedRequest
	err := json.Unmarshal([]byte(member), &req)
	return req, err
}
