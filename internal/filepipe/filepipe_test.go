package filepipe

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestEncodeFileChunkCountForKnownSize(t *testing.T) {
	// 150000 raw bytes -> base64 inflates by 4/3 to 200000 chars ->
	// chunked at 60000 raw bytes (80000 encoded chars) per chunk -> 3
	// chunks, matching spec §8 scenario 3.
	raw := make([]byte, 150000)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("rand: %v", err)
	}
	encoded, total := EncodeFile(raw)
	if total != 3 {
		t.Fatalf("expected 3 chunks for a 150000-byte file, got %d (encoded len %d)", total, len(encoded))
	}
}

func TestChunksAndReassemblyRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte("localchat-file-pipeline-test-payload-"), 5000)
	encoded, total := EncodeFile(raw)
	chunks := Chunks(encoded)
	if len(chunks) != total {
		t.Fatalf("Chunks produced %d pieces, EncodeFile said %d", len(chunks), total)
	}

	r := NewReassembly("file-1", "payload.bin", int64(len(raw)), total)
	if r.Complete() {
		t.Fatalf("expected reassembly incomplete before any chunk arrives")
	}
	for i, c := range chunks {
		r.Put(i, c)
	}
	if !r.Complete() {
		t.Fatalf("expected reassembly complete after every chunk placed")
	}
	got, err := r.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("reassembled payload does not match original: got %d bytes, want %d", len(got), len(raw))
	}
}

func TestReassemblyOutOfOrderArrival(t *testing.T) {
	raw := bytes.Repeat([]byte("x"), 200000)
	encoded, total := EncodeFile(raw)
	chunks := Chunks(encoded)
	r := NewReassembly("file-2", "x.bin", int64(len(raw)), total)
	// Place chunks in reverse order; indexing must still land correctly.
	for i := len(chunks) - 1; i >= 0; i-- {
		r.Put(i, chunks[i])
	}
	if !r.Complete() {
		t.Fatalf("expected reassembly complete regardless of arrival order")
	}
	got, err := r.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("reassembled payload mismatch after out-of-order arrival")
	}
}

func TestAssembleFailsWhileIncomplete(t *testing.T) {
	r := NewReassembly("file-3", "partial.bin", 100, 2)
	r.Put(0, "only-one-chunk")
	if r.Complete() {
		t.Fatalf("expected incomplete with 1/2 chunks")
	}
	if _, err := r.Assemble(); err == nil {
		t.Fatalf("expected Assemble to fail while incomplete")
	}
}

func TestChunkAtUnknownIndexIgnored(t *testing.T) {
	r := NewReassembly("file-4", "f.bin", 10, 1)
	r.Put(5, "out-of-range")
	if r.Complete() {
		t.Fatalf("expected out-of-range chunk index to be discarded, not counted")
	}
}

func TestBuffersLifecycle(t *testing.T) {
	b := NewBuffers()
	r := b.Start("file-5", "f.bin", 10, 1)
	got, ok := b.Get("file-5")
	if !ok || got != r {
		t.Fatalf("expected Get to return the started reassembly record")
	}
	b.Discard("file-5")
	if _, ok := b.Get("file-5"); ok {
		t.Fatalf("expected reassembly discarded")
	}

	b.Start("file-6", "f.bin", 10, 1)
	b.Clear()
	if _, ok := b.Get("file-6"); ok {
		t.Fatalf("expected Clear to remove every pending reassembly")
	}
}
