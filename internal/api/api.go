// Package api is the boundary surface to the UI (spec §6.4): a
// synchronous request/response layer plus an asynchronous event stream,
// with no shared memory crossing the boundary (spec §9's "callback-style
// IPC" redesign). A UI process (out of scope for this module) talks to
// these types over whatever transport it likes — stdio, a local socket —
// since every value here is a plain JSON-taggable struct.
package api

import (
	"encoding/base64"
	"errors"

	"localchat/internal/localerr"
	"localchat/internal/metrics"
	"localchat/internal/peertable"
	"localchat/internal/session"
	"localchat/internal/wire"
)

// JoinRequest is the join-room call's parameters.
type JoinRequest struct {
	Room     string `json:"room"`
	UserName string `json:"userName"`
}

// JoinResponse is join-room's result.
type JoinResponse struct {
	Success bool   `json:"success"`
	Port    int    `json:"port,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SendMessageRequest is send-message's parameters.
type SendMessageRequest struct {
	Structure []wire.Part     `json:"structure"`
	Files     []wire.FileMeta `json:"files,omitempty"`
}

// SendMessageResponse is send-message's result.
type SendMessageResponse struct {
	Success bool                 `json:"success"`
	Message *session.ChatMessage `json:"message,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// LeaveResponse is leave-room's result; leaving never fails.
type LeaveResponse struct {
	Success bool `json:"success"`
}

// PeerView is one entry of get-peers' result.
type PeerView struct {
	PeerID      string `json:"peerId"`
	DisplayName string `json:"displayName"`
	LastSeen    int64  `json:"lastSeen"`
}

// SaveFileDialogRequest is save-file-dialog's parameters. The dialog
// itself is an OS-level concern the UI layer owns; the core only
// forwards the request to whatever delegate the UI registered.
type SaveFileDialogRequest struct {
	FileName string `json:"fileName"`
	FileData string `json:"fileData"`
}

// SaveFileDialogResponse is save-file-dialog's result.
type SaveFileDialogResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ErrSaveFileDialogUnavailable is returned when no UI delegate has been
// registered for save-file-dialog.
var ErrSaveFileDialogUnavailable = errors.New("api: save-file-dialog has no registered UI delegate")

// ChunkView mirrors session.ChunkDescriptor for the wire boundary.
type ChunkView struct {
	FileID      string `json:"fileId"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
	Complete    bool   `json:"complete"`
}

// EventKind discriminates an EventEnvelope, matching the four
// asynchronous events named in spec §6.4.
type EventKind string

const (
	EventNewMessage        EventKind = "new-message"
	EventFileChunkReceived EventKind = "file-chunk-received"
	EventHistoryReceived   EventKind = "history-received"
	EventError             EventKind = "error"
)

// EventEnvelope is the single tagged-union shape emitted on the Events
// channel; exactly the fields relevant to Kind are populated.
type EventEnvelope struct {
	Kind     EventKind            `json:"kind"`
	Message  *session.ChatMessage `json:"message,omitempty"`
	Chunk    *ChunkView           `json:"chunk,omitempty"`
	FileData string               `json:"fileData,omitempty"` // base64, set when Chunk.Complete
	Messages []session.ChatMessage `json:"messages,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// SaveFileDialogFunc is the UI-supplied delegate for save-file-dialog.
type SaveFileDialogFunc func(req SaveFileDialogRequest) error

// API wraps a session.Controller with the request/response + event
// shapes the boundary contract names. It holds no room state of its
// own — every piece of session state lives in the Controller.
type API struct {
	ctl            *session.Controller
	events         chan EventEnvelope
	saveFileDialog SaveFileDialogFunc
}

// New constructs an API bound to ctl and starts the event-translation
// pump that forwards ctl's internal events as EventEnvelopes.
func New(ctl *session.Controller) *API {
	a := &API{
		ctl:    ctl,
		events: make(chan EventEnvelope, 256),
	}
	go a.pump()
	return a
}

// SetSaveFileDialogDelegate registers the UI-side handler for
// save-file-dialog. Until called, that request fails with
// ErrSaveFileDialogUnavailable.
func (a *API) SetSaveFileDialogDelegate(fn SaveFileDialogFunc) {
	a.saveFileDialog = fn
}

// Events returns the asynchronous event stream.
func (a *API) Events() <-chan EventEnvelope {
	return a.events
}

func (a *API) pump() {
	for ev := range a.ctl.Events() {
		a.events <- translate(ev)
	}
}

func translate(ev session.Event) EventEnvelope {
	switch ev.Kind {
	case session.EventNewMessage:
		return EventEnvelope{Kind: EventNewMessage, Message: ev.Message}
	case session.EventFileChunkReceived:
		out := EventEnvelope{Kind: EventFileChunkReceived}
		if ev.Chunk != nil {
			out.Chunk = &ChunkView{
				FileID:      ev.Chunk.FileID,
				ChunkIndex:  ev.Chunk.ChunkIndex,
				TotalChunks: ev.Chunk.TotalChunks,
				Complete:    ev.Chunk.Complete,
			}
		}
		if ev.FileData != nil {
			out.FileData = base64.StdEncoding.EncodeToString(ev.FileData)
		}
		return out
	case session.EventHistoryReceived:
		return EventEnvelope{Kind: EventHistoryReceived, Messages: ev.History}
	default:
		return EventEnvelope{Kind: EventError, Error: ev.ErrMessage}
	}
}

// JoinRoom joins req.Room under req.UserName.
func (a *API) JoinRoom(req JoinRequest) JoinResponse {
	port, err := a.ctl.Join(req.Room, req.UserName)
	if err != nil {
		return JoinResponse{Success: false, Error: errString(err)}
	}
	return JoinResponse{Success: true, Port: port}
}

// SendMessage sends a chat message in the current room.
func (a *API) SendMessage(req SendMessageRequest) SendMessageResponse {
	msg, err := a.ctl.SendMessage(req.Structure, req.Files)
	if err != nil {
		return SendMessageResponse{Success: false, Error: errString(err)}
	}
	return SendMessageResponse{Success: true, Message: &msg}
}

// SendFile announces and streams a file attachment alongside optional
// text parts, via session.Controller.SendFile.
func (a *API) SendFile(textParts []wire.Part, fileName string, raw []byte) SendMessageResponse {
	msg, err := a.ctl.SendFile(textParts, fileName, raw)
	if err != nil {
		return SendMessageResponse{Success: false, Error: errString(err)}
	}
	return SendMessageResponse{Success: true, Message: &msg}
}

// LeaveRoom leaves the current room, if any.
func (a *API) LeaveRoom() LeaveResponse {
	_ = a.ctl.Leave()
	return LeaveResponse{Success: true}
}

// GetPeers reports every currently tracked peer.
func (a *API) GetPeers() []PeerView {
	records := a.ctl.GetPeers()
	out := make([]PeerView, 0, len(records))
	for _, r := range records {
		out = append(out, peerView(r))
	}
	return out
}

// Status returns the current session-lifetime metrics snapshot, for a
// UI connection-health indicator.
func (a *API) Status() metrics.Snapshot {
	return a.ctl.Metrics()
}

func peerView(r peertable.Record) PeerView {
	return PeerView{
		PeerID:      r.PeerID,
		DisplayName: r.DisplayName,
		LastSeen:    r.LastSeen.UnixMilli(),
	}
}

// SaveFileDialog forwards to the registered UI delegate. This is an
// out-of-scope OS concern (spec §1); the core never touches a
// filesystem on the UI's behalf.
func (a *API) SaveFileDialog(req SaveFileDialogRequest) SaveFileDialogResponse {
	if a.saveFileDialog == nil {
		return SaveFileDialogResponse{Success: false, Error: ErrSaveFileDialogUnavailable.Error()}
	}
	if err := a.saveFileDialog(req); err != nil {
		return SaveFileDialogResponse{Success: false, Error: err.Error()}
	}
	return SaveFileDialogResponse{Success: true}
}

func errString(err error) string {
	switch {
	case errors.Is(err, localerr.ErrInvalidRoom):
		return "InvalidRoom"
	case errors.Is(err, localerr.ErrBindExhausted):
		return "BindExhausted"
	case errors.Is(err, localerr.ErrNotInRoom):
		return "NotInRoom"
	default:
		return err.Error()
	}
}
