// Package metrics tracks session-lifetime counters the boundary API can
// surface to the UI for a connection-health indicator (SPEC_FULL §12).
package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time read of every counter.
type Snapshot struct {
	GeneratedAt      time.Time `json:"generated_at"`
	EnvelopesSent    uint64    `json:"envelopes_sent"`
	EnvelopesRecv    uint64    `json:"envelopes_received"`
	DedupRejects     uint64    `json:"dedup_rejects"`
	AeadFailures     uint64    `json:"aead_failures"`
	DecodeFailures   uint64    `json:"decode_failures"`
	PeersEvicted     uint64    `json:"peers_evicted"`
	FilesReassembled uint64    `json:"files_reassembled"`
}

// Metrics is a set of atomic counters for one session's lifetime.
type Metrics struct {
	envelopesSent    atomic.Uint64
	envelopesRecv    atomic.Uint64
	dedupRejects     atomic.Uint64
	aeadFailures     atomic.Uint64
	decodeFailures   atomic.Uint64
	peersEvicted     atomic.Uint64
	filesReassembled atomic.Uint64
}

// New constructs a zeroed counter set.
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncEnvelopesSent()    { m.envelopesSent.Add(1) }
func (m *Metrics) IncEnvelopesRecv()    { m.envelopesRecv.Add(1) }
func (m *Metrics) IncDedupRejects()     { m.dedupRejects.Add(1) }
func (m *Metrics) IncAeadFailures()     { m.aeadFailures.Add(1) }
func (m *Metrics) IncDecodeFailures()   { m.decodeFailures.Add(1) }
func (m *Metrics) IncPeersEvicted()     { m.peersEvicted.Add(1) }
func (m *Metrics) IncFilesReassembled() { m.filesReassembled.Add(1) }

// Snapshot reads every counter at once.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		GeneratedAt:      time.Now().UTC(),
		EnvelopesSent:    m.envelopesSent.Load(),
		EnvelopesRecv:    m.envelopesRecv.Load(),
		DedupRejects:     m.dedupRejects.Load(),
		AeadFailures:     m.aeadFailures.Load(),
		DecodeFailures:   m.decodeFailures.Load(),
		PeersEvicted:     m.peersEvicted.Load(),
		FilesReassembled: m.filesReassembled.Load(),
	}
}
