// Package session implements the session controller (spec §4.8): the
// join/leave lifecycle, per-session peer-id generation, and the
// in-memory message log, peer table, dedup cache, and file-reassembly
// buffers it exclusively owns.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"localchat/internal/cryptochan"
	"localchat/internal/debuglog"
	"localchat/internal/dedup"
	"localchat/internal/filepipe"
	"localchat/internal/localerr"
	"localchat/internal/metrics"
	"localchat/internal/peertable"
	"localchat/internal/router"
	"localchat/internal/transport"
	"localchat/internal/wire"
)

var roomNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// historyRequestDelay is how long after a join the session waits before
// broadcasting its history_request, giving its own join envelope a
// moment to reach peers first.
const historyRequestDelay = 500 * time.Millisecond

// leaveDrainDelay is how long Leave waits for the outgoing leave
// envelope to reach the network before the socket is closed.
const leaveDrainDelay = 100 * time.Millisecond

// filePacingDelay is the inter-send delay between outbound file chunks
// and between paced history-replay messages, to avoid flooding the LAN.
const filePacingDelay = 5 * time.Millisecond

// roomState is everything a single joined room needs. A fresh instance
// is created on every Join; the old one (if any) is torn down first.
// This is the "ambient mutable state → owned value" redesign from
// spec §9: the controller never mutates global state, only swaps this
// pointer under Controller.mu.
type roomState struct {
	room        string
	roomKey     cryptochan.Key
	localPeerID string
	displayName string

	transport *transport.Transport
	peers     *peertable.Table
	dedup     *dedup.Cache
	files     *filepipe.Buffers
	router    *router.Router

	logMu sync.Mutex
	log   []ChatMessage

	fileDataMu sync.Mutex
	fileData   map[string][]byte // raw bytes for files this node can replay in history

	stop chan struct{}
}

// Controller is the boundary API's backing implementation.
type Controller struct {
	mu      sync.Mutex
	st      *roomState
	events  chan Event
	metrics *metrics.Metrics
}

// NewController constructs an idle controller.
func NewController(m *metrics.Metrics) *Controller {
	if m == nil {
		m = metrics.New()
	}
	return &Controller{
		events:  make(chan Event, 256),
		metrics: m,
	}
}

// Events returns the asynchronous event stream surfaced to the UI.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// normalizeRoom applies spec §4.8's normalization: trim, spaces to
// hyphens, lowercase, then first letter upper-cased.
func normalizeRoom(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ToLower(s)
	if s == "" {
		return ""
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func randomHexID(nbytes int) string {
	buf := make([]byte, nbytes)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func newMessageID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Join normalizes and validates the room name, tears down any existing
// session, derives the room key, binds a UDP socket (with sequential
// port fallback), generates a fresh peer-id, and announces the join.
func (c *Controller) Join(room, displayName string) (int, error) {
	normalized := normalizeRoom(room)
	if normalized == "" || !roomNameRe.MatchString(normalized) {
		return 0, localerr.ErrInvalidRoom
	}
	if displayName == "" {
		displayName = "Anonymous"
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != nil {
		c.teardownLocked(c.st)
		c.st = nil
	}

	tr, err := transport.Bind(normalized)
	if err != nil {
		return 0, err
	}

	st := &roomState{
		room:        normalized,
		roomKey:     cryptochan.DeriveKey(normalized),
		localPeerID: randomHexID(8),
		displayName: displayName,
		transport:   tr,
		files:       filepipe.NewBuffers(),
		fileData:    make(map[string][]byte),
		stop:        make(chan struct{}),
	}
	st.dedup = dedup.New()
	st.peers = peertable.New(peertable.Options{
		OnEvict: func(peerID string) { c.metrics.IncPeersEvicted() },
	})
	st.router = router.New(st.localPeerID, router.Handlers{
		OnJoin:           func(env wire.Envelope, from router.Source) { c.handleJoin(st, env) },
		OnHistoryRequest: func(env wire.Envelope, from router.Source) { c.handleHistoryRequest(st, from) },
		OnMessage:        func(env wire.Envelope, from router.Source) { c.handleMessage(st, env) },
		OnFileChunk:      func(env wire.Envelope, from router.Source) { c.handleFileChunk(st, env) },
		OnLeave:          func(env wire.Envelope, from router.Source) { st.peers.Remove(env.PeerID) },
	})

	c.st = st
	go c.recvLoop(st)
	st.peers.RunSweeper(st.stop)

	c.broadcastJoin(st)
	go c.scheduleHistoryRequest(st)

	debuglog.Logf("session: joined room %q as peer %s on port %d", st.room, st.localPeerID, tr.Port())
	return tr.Port(), nil
}

func (c *Controller) scheduleHistoryRequest(st *roomState) {
	select {
	case <-time.After(historyRequestDelay):
	case <-st.stop:
		return
	}
	c.broadcastHistoryRequest(st)
}

// Leave broadcasts a leave envelope, waits for it to drain, then closes
// the socket and clears every piece of session state. It is a no-op if
// not currently joined.
func (c *Controller) Leave() error {
	c.mu.Lock()
	st := c.st
	c.st = nil
	c.mu.Unlock()

	if st == nil {
		return nil
	}
	c.teardownLocked(st)
	return nil
}

// teardownLocked broadcasts leave, drains, and releases every resource
// owned by st. The caller is responsible for having already detached st
// from Controller.st.
func (c *Controller) teardownLocked(st *roomState) {
	c.broadcastLeave(st)
	time.Sleep(leaveDrainDelay)
	close(st.stop)
	_ = st.transport.Close()
	debuglog.Logf("session: left room %q", st.room)
}

func (c *Controller) current() *roomState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// SendMessage assigns a fresh message-id, appends to the local log, and
// broadcasts the message envelope (metadata only for files; actual
// bytes stream via SendFileChunk / SendFile).
func (c *Controller) SendMessage(structure []wire.Part, files []wire.FileMeta) (ChatMessage, error) {
	st := c.current()
	if st == nil {
		return ChatMessage{}, localerr.ErrNotInRoom
	}
	msg := ChatMessage{
		MessageID: newMessageID(),
		Sender:    st.displayName,
		Timestamp: time.Now().UnixMilli(),
		Structure: structure,
		Files:     files,
	}
	st.logMu.Lock()
	st.log = append(st.log, msg)
	st.logMu.Unlock()

	c.broadcastMessage(st, msg)
	return msg, nil
}

// SendFileChunk wraps a single chunk as a file_chunk envelope and
// broadcasts it. Delivery is best-effort and dedup-protected; there is
// no per-chunk retry.
func (c *Controller) SendFileChunk(fileID string, chunkIndex int, chunkData string) error {
	st := c.current()
	if st == nil {
		return localerr.ErrNotInRoom
	}
	c.broadcastFileChunk(st, fileID, chunkIndex, chunkData)
	return nil
}

// SendFile is a convenience that announces a file via SendMessage and
// then streams its chunks with the spec's ~5ms inter-send pacing. The
// raw bytes are retained locally so this node can replay them as
// file_chunk envelopes if it later services a history_request.
func (c *Controller) SendFile(textParts []wire.Part, name string, raw []byte) (ChatMessage, error) {
	st := c.current()
	if st == nil {
		return ChatMessage{}, localerr.ErrNotInRoom
	}
	fileID := newMessageID()
	encoded, total := filepipe.EncodeFile(raw)
	meta := wire.FileMeta{ID: fileID, Name: name, Size: int64(len(raw)), TotalChunks: total}

	c.storeFileData(st, fileID, raw)

	parts := append(append([]wire.Part{}, textParts...), wire.Part{Type: wire.PartFile, ID: fileID})
	msg, err := c.SendMessage(parts, []wire.FileMeta{meta})
	if err != nil {
		return ChatMessage{}, err
	}

	chunks := filepipe.Chunks(encoded)
	go func() {
		for i, chunk := range chunks {
			if c.current() != st {
				return
			}
			_ = c.SendFileChunk(fileID, i, chunk)
			time.Sleep(filePacingDelay)
		}
	}()
	return msg, nil
}

func (c *Controller) storeFileData(st *roomState, fileID string, raw []byte) {
	st.fileDataMu.Lock()
	st.fileData[fileID] = raw
	st.fileDataMu.Unlock()
}

// Metrics returns the session-lifetime counter snapshot, for a UI
// connection-health indicator (SPEC_FULL §12).
func (c *Controller) Metrics() metrics.Snapshot {
	return c.metrics.Snapshot()
}

// GetPeers returns a snapshot of every peer currently tracked.
func (c *Controller) GetPeers() []peertable.Record {
	st := c.current()
	if st == nil {
		return nil
	}
	return st.peers.List()
}

func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		debuglog.Logf("session: event channel saturated, dropping event kind=%d", ev.Kind)
	}
}

func (c *Controller) emitError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	debuglog.Logf("%s", msg)
	c.emit(Event{Kind: EventError, ErrMessage: msg})
}

// ---- receive path ----

func (c *Controller) recvLoop(st *roomState) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-st.stop
		cancel()
	}()
	defer cancel()

	for {
		dg, err := st.transport.Recv(ctx)
		if err != nil {
			select {
			case <-st.stop:
				return
			default:
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		c.handleDatagram(st, dg)
	}
}

func (c *Controller) handleDatagram(st *roomState, dg transport.Datagram) {
	env, err := wire.Decode(dg.Payload)
	if err != nil {
		c.metrics.IncDecodeFailures()
		debuglog.RateLimitedf("decode-failure", time.Second, "session: decode failed from %s: %v", dg.Addr, err)
		return
	}
	c.metrics.IncEnvelopesRecv()

	if env.PeerID != st.localPeerID {
		st.peers.Touch(env.PeerID, dg.Addr.String(), dg.Port, env.DisplayName)
	}

	if st.dedup.SeenOrRecord(env.MessageID) {
		c.metrics.IncDedupRejects()
		return
	}

	raw, err := wire.Open(env, st.roomKey)
	if err != nil {
		c.metrics.IncAeadFailures()
		debuglog.RateLimitedf("aead-failure", time.Second, "session: open failed from %s", dg.Addr)
		return
	}
	env.Content = raw

	st.router.Dispatch(env, router.Source{Addr: dg.Addr.String(), Port: dg.Port})
}

func (c *Controller) handleJoin(st *roomState, env wire.Envelope) {
	debuglog.Logf("session: join from peer %s (%s)", env.PeerID, env.DisplayName)
}

func (c *Controller) handleMessage(st *roomState, env wire.Envelope) {
	var content wire.MessageContent
	if err := wire.DecodeContent(env.Content, &content); err != nil {
		c.metrics.IncDecodeFailures()
		return
	}
	msg := ChatMessage{
		MessageID: env.MessageID,
		Sender:    env.DisplayName,
		Timestamp: env.Timestamp,
		Structure: content.Structure,
		Files:     content.Files,
	}
	st.logMu.Lock()
	st.log = append(st.log, msg)
	st.logMu.Unlock()

	for _, fm := range content.Files {
		st.files.Start(fm.ID, fm.Name, fm.Size, fm.TotalChunks)
	}

	c.emit(Event{Kind: EventNewMessage, Message: &msg})
}

func (c *Controller) handleFileChunk(st *roomState, env wire.Envelope) {
	var content wire.FileChunkContent
	if err := wire.DecodeContent(env.Content, &content); err != nil {
		c.metrics.IncDecodeFailures()
		return
	}
	r, ok := st.files.Get(content.FileID)
	if !ok {
		return // chunks for unknown file-ids are discarded
	}
	r.Put(content.ChunkIndex, content.ChunkData)

	desc := ChunkDescriptor{
		FileID:      content.FileID,
		ChunkIndex:  content.ChunkIndex,
		TotalChunks: r.TotalChunks,
		Complete:    r.Complete(),
	}
	ev := Event{Kind: EventFileChunkReceived, Chunk: &desc}
	if desc.Complete {
		if data, err := r.Assemble(); err == nil {
			ev.FileData = data
			c.metrics.IncFilesReassembled()
			c.storeFileData(st, content.FileID, data)
		}
	}
	c.emit(ev)
}

func (c *Controller) handleHistoryRequest(st *roomState, from router.Source) {
	st.logMu.Lock()
	logCopy := append([]ChatMessage(nil), st.log...)
	st.logMu.Unlock()

	go func() {
		for _, msg := range logCopy {
			content := wire.MessageContent{Structure: msg.Structure, Files: msg.Files}
			env := wire.Envelope{
				Type:        wire.TypeMessage,
				MessageID:   msg.MessageID,
				PeerID:      st.localPeerID,
				DisplayName: msg.Sender,
				Timestamp:   msg.Timestamp,
			}
			data, err := wire.Encode(env, content, &st.roomKey)
			if err != nil {
				debuglog.Logf("session: history replay encode failed: %v", err)
				continue
			}
			st.transport.SendTo(from.Addr, from.Port, data)
			c.metrics.IncEnvelopesSent()
			debuglog.RateLimitedf("history-replay", time.Second, "session: replaying history to %s:%d", from.Addr, from.Port)
			time.Sleep(filePacingDelay)

			for _, fm := range msg.Files {
				st.fileDataMu.Lock()
				raw, ok := st.fileData[fm.ID]
				st.fileDataMu.Unlock()
				if !ok {
					continue
				}
				encoded, _ := filepipe.EncodeFile(raw)
				for i, chunk := range filepipe.Chunks(encoded) {
					fcEnv := wire.Envelope{
						Type:        wire.TypeFileChunk,
						MessageID:   newMessageID(),
						PeerID:      st.localPeerID,
						DisplayName: st.displayName,
						Timestamp:   time.Now().UnixMilli(),
					}
					fcData, err := wire.Encode(fcEnv, wire.FileChunkContent{FileID: fm.ID, ChunkIndex: i, ChunkData: chunk}, &st.roomKey)
					if err != nil {
						continue
					}
					st.transport.SendTo(from.Addr, from.Port, fcData)
					c.metrics.IncEnvelopesSent()
					time.Sleep(filePacingDelay)
				}
			}
		}
	}()
}

// ---- outbound helpers ----

// broadcast fans out payload to every known peer's last observed
// address:port plus a 255.255.255.255 broadcast on the room's base
// port, per spec §4.8.
func (c *Controller) broadcast(st *roomState, payload []byte) {
	st.transport.Broadcast(payload)
	for _, p := range st.peers.List() {
		st.transport.SendTo(p.Addr, p.Port, payload)
	}
	c.metrics.IncEnvelopesSent()
}

func (c *Controller) broadcastJoin(st *roomState) {
	env := wire.Envelope{
		Type:        wire.TypeJoin,
		MessageID:   newMessageID(),
		PeerID:      st.localPeerID,
		DisplayName: st.displayName,
		Timestamp:   time.Now().UnixMilli(),
	}
	data, err := wire.Encode(env, nil, nil)
	if err != nil {
		debuglog.Logf("session: encode join failed: %v", err)
		return
	}
	c.broadcast(st, data)
}

func (c *Controller) broadcastLeave(st *roomState) {
	env := wire.Envelope{
		Type:        wire.TypeLeave,
		MessageID:   newMessageID(),
		PeerID:      st.localPeerID,
		DisplayName: st.displayName,
		Timestamp:   time.Now().UnixMilli(),
	}
	data, err := wire.Encode(env, nil, nil)
	if err != nil {
		return
	}
	c.broadcast(st, data)
}

func (c *Controller) broadcastHistoryRequest(st *roomState) {
	env := wire.Envelope{
		Type:        wire.TypeHistoryRequest,
		MessageID:   newMessageID(),
		PeerID:      st.localPeerID,
		DisplayName: st.displayName,
		Timestamp:   time.Now().UnixMilli(),
	}
	data, err := wire.Encode(env, nil, nil)
	if err != nil {
		return
	}
	c.broadcast(st, data)
}

func (c *Controller) broadcastMessage(st *roomState, msg ChatMessage) {
	content := wire.MessageContent{Structure: msg.Structure, Files: msg.Files}
	env := wire.Envelope{
		Type:        wire.TypeMessage,
		MessageID:   msg.MessageID,
		PeerID:      st.localPeerID,
		DisplayName: st.displayName,
		Timestamp:   msg.Timestamp,
	}
	data, err := wire.Encode(env, content, &st.roomKey)
	if err != nil {
		c.emitError("session: encode message failed: %v", err)
		return
	}
	c.broadcast(st, data)
}

func (c *Controller) broadcastFileChunk(st *roomState, fileID string, chunkIndex int, chunkData string) {
	content := wire.FileChunkContent{FileID: fileID, ChunkIndex: chunkIndex, ChunkData: chunkData}
	env := wire.Envelope{
		Type:        wire.TypeFileChunk,
		MessageID:   newMessageID(),
		PeerID:      st.localPeerID,
		DisplayName: st.displayName,
		Timestamp:   time.Now().UnixMilli(),
	}
	data, err := wire.Encode(env, content, &st.roomKey)
	if err != nil {
		debuglog.Logf("session: encode file chunk failed: %v", err)
		return
	}
	c.broadcast(st, data)
}
