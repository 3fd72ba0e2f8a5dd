// Package router dispatches decoded envelopes to per-type handlers,
// rejecting self-origin datagrams before any handler runs (spec §4.7).
package router

import (
	"localchat/internal/wire"
)

// Source identifies where an envelope arrived from, passed through to
// handlers that need to reply directly to the sender (history replay,
// file-chunk reassembly).
type Source struct {
	Addr string
	Port int
}

// Handlers groups the callbacks the router dispatches to. A nil handler
// for a given type means that type is accepted but otherwise a no-op,
// which is the documented behavior for "ack" and "status_request".
type Handlers struct {
	OnJoin           func(env wire.Envelope, from Source)
	OnHistoryRequest func(env wire.Envelope, from Source)
	OnMessage        func(env wire.Envelope, from Source)
	OnFileChunk      func(env wire.Envelope, from Source)
	OnLeave          func(env wire.Envelope, from Source)
}

// Router dispatches by envelope type.
type Router struct {
	localPeerID string
	handlers    Handlers
}

// New constructs a router bound to the local peer id, used to discard
// self-origin datagrams before dispatch.
func New(localPeerID string, handlers Handlers) *Router {
	return &Router{localPeerID: localPeerID, handlers: handlers}
}

// Dispatch routes env to its handler. It returns false, with no handler
// invoked, if env originated from the local peer id — invariant 2 of
// spec §8.
func (r *Router) Dispatch(env wire.Envelope, from Source) bool {
	if env.PeerID == r.localPeerID {
		return false
	}
	switch env.Type {
	case wire.TypeJoin:
		call(r.handlers.OnJoin, env, from)
	case wire.TypeHistoryRequest:
		call(r.handlers.OnHistoryRequest, env, from)
	case wire.TypeMessage:
		call(r.handlers.OnMessage, env, from)
	case wire.TypeFileChunk:
		call(r.handlers.OnFileChunk, env, from)
	case wire.TypeLeave:
		call(r.handlers.OnLeave, env, from)
	case wire.TypeAck, wire.TypeStatusRequest:
		// Reserved for future reliable-delivery work; accepted, no-op.
	}
	return true
}

func call(h func(wire.Envelope, Source), env wire.Envelope, from Source) {
	if h != nil {
		h(env, from)
	}
}
