// Package wire defines the on-wire JSON envelope and its per-type
// content shapes (spec §6.1), and the encode/decode + seal/open
// integration that swaps a plaintext content field for a sealed one.
package wire

import (
	"encoding/json"
	"fmt"

	"localchat/internal/cryptochan"
	"localchat/internal/localerr"
)

// Type identifies the envelope's purpose.
type Type string

const (
	TypeJoin           Type = "join"
	TypeMessage        Type = "message"
	TypeFileChunk      Type = "file_chunk"
	TypeAck            Type = "ack"
	TypeHistoryRequest Type = "history_request"
	TypeStatusRequest  Type = "status_request"
	TypeLeave          Type = "leave"
)

// Part is one piece of a chat message's structure: either inline text or
// a reference to a file announced in the same message.
type Part struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	ID      string `json:"id,omitempty"`
}

const (
	PartText = "text"
	PartFile = "file"
)

// FileMeta describes a file attachment announced alongside a message.
type FileMeta struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	TotalChunks int    `json:"totalChunks"`
}

// MessageContent is the content shape for type "message".
type MessageContent struct {
	Structure []Part     `json:"structure"`
	Files     []FileMeta `json:"files,omitempty"`
}

// FileChunkContent is the content shape for type "file_chunk".
type FileChunkContent struct {
	FileID     string `json:"fileId"`
	ChunkIndex int    `json:"chunkIndex"`
	ChunkData  string `json:"chunkData"`
}

// Envelope is the full on-wire datagram. Content is the plaintext
// content before sealing (or after a successful open); Encrypted is the
// sealed form. Exactly one of the two is populated for types that carry
// content at all.
type Envelope struct {
	Type        Type               `json:"type"`
	MessageID   string             `json:"messageId"`
	PeerID      string             `json:"peerId"`
	DisplayName string             `json:"displayName"`
	Timestamp   int64              `json:"timestamp"`
	Content     json.RawMessage    `json:"content,omitempty"`
	Encrypted   *cryptochan.Sealed `json:"encrypted,omitempty"`
}

// Encode marshals an envelope. If content is non-nil and a room key is
// supplied, the plaintext content is sealed and replaces the content
// field with an encrypted one; otherwise content (if any) is carried in
// the clear, matching the codec rule in spec §4.4.
func Encode(env Envelope, content any, key *cryptochan.Key) ([]byte, error) {
	if content != nil {
		raw, err := json.Marshal(content)
		if err != nil {
			return nil, fmt.Errorf("wire: marshal content: %w", err)
		}
		if key != nil {
			sealed, err := cryptochan.Seal(*key, raw)
			if err != nil {
				return nil, fmt.Errorf("wire: seal: %w", err)
			}
			env.Encrypted = &sealed
			env.Content = nil
		} else {
			env.Content = raw
			env.Encrypted = nil
		}
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal envelope: %w", err)
	}
	return out, nil
}

// Decode unmarshals a datagram into an envelope, performing basic
// required-field validation. A sealed envelope comes back with its
// content still sealed in Encrypted — callers that need plaintext content
// must call Open.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, localerr.ErrDecodeFailure
	}
	if env.Type == "" || env.MessageID == "" || env.PeerID == "" {
		return Envelope{}, localerr.ErrDecodeFailure
	}
	return env, nil
}

// Open reinstalls the plaintext content field for an envelope that
// arrived sealed. It is a no-op (success) if the envelope was never
// sealed. On AEAD failure it returns localerr.ErrAeadFailure; the caller
// must drop the datagram silently.
func Open(env Envelope, key cryptochan.Key) (json.RawMessage, error) {
	if env.Encrypted == nil {
		return env.Content, nil
	}
	plaintext, err := cryptochan.Open(key, *env.Encrypted)
	if err != nil {
		return nil, localerr.ErrAeadFailure
	}
	return plaintext, nil
}

// DecodeContent unmarshals an envelope's plaintext content into dst.
func DecodeContent(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return localerr.ErrDecodeFailure
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return localerr.ErrDecodeFailure
	}
	return nil
}
