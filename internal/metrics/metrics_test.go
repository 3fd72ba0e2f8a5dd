package metrics

import "testing"

func TestCountersAccumulateAndSnapshot(t *testing.T) {
	m := New()
	m.IncEnvelopesSent()
	m.IncEnvelopesSent()
	m.IncEnvelopesRecv()
	m.IncDedupRejects()
	m.IncAeadFailures()
	m.IncDecodeFailures()
	m.IncPeersEvicted()
	m.IncFilesReassembled()

	snap := m.Snapshot()
	if snap.EnvelopesSent != 2 {
		t.Fatalf("expected EnvelopesSent=2, got %d", snap.EnvelopesSent)
	}
	if snap.EnvelopesRecv != 1 || snap.DedupRejects != 1 || snap.AeadFailures != 1 ||
		snap.DecodeFailures != 1 || snap.PeersEvicted != 1 || snap.FilesReassembled != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
