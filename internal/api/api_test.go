package api

import (
	"testing"
	"time"

	"localchat/internal/metrics"
	"localchat/internal/session"
	"localchat/internal/wire"
)

func TestJoinRoomSuccessAndPort(t *testing.T) {
	a := New(session.NewController(metrics.New()))
	resp := a.JoinRoom(JoinRequest{Room: "api-join-room", UserName: "Alice"})
	if !resp.Success || resp.Port == 0 {
		t.Fatalf("expected successful join with a bound port, got %+v", resp)
	}
	defer a.LeaveRoom()
}

func TestJoinRoomInvalidNameSurfacesErrorString(t *testing.T) {
	a := New(session.NewController(metrics.New()))
	resp := a.JoinRoom(JoinRequest{Room: "   ", UserName: "Alice"})
	if resp.Success || resp.Error != "InvalidRoom" {
		t.Fatalf("expected InvalidRoom error, got %+v", resp)
	}
}

func TestSendMessageBeforeJoinFails(t *testing.T) {
	a := New(session.NewController(metrics.New()))
	resp := a.SendMessage(SendMessageRequest{Structure: []wire.Part{{Type: wire.PartText, Content: "hi"}}})
	if resp.Success || resp.Error != "NotInRoom" {
		t.Fatalf("expected NotInRoom error, got %+v", resp)
	}
}

func TestSendMessageSuccess(t *testing.T) {
	a := New(session.NewController(metrics.New()))
	if resp := a.JoinRoom(JoinRequest{Room: "api-send-room", UserName: "Alice"}); !resp.Success {
		t.Fatalf("join failed: %+v", resp)
	}
	defer a.LeaveRoom()

	resp := a.SendMessage(SendMessageRequest{Structure: []wire.Part{{Type: wire.PartText, Content: "hello"}}})
	if !resp.Success || resp.Message == nil || resp.Message.MessageID == "" {
		t.Fatalf("expected a successful send with an assigned message id, got %+v", resp)
	}
}

func TestGetPeersEmptyBeforeAnyoneJoins(t *testing.T) {
	a := New(session.NewController(metrics.New()))
	if resp := a.JoinRoom(JoinRequest{Room: "api-peers-room", UserName: "Alice"}); !resp.Success {
		t.Fatalf("join failed: %+v", resp)
	}
	defer a.LeaveRoom()

	if peers := a.GetPeers(); len(peers) != 0 {
		t.Fatalf("expected no peers, got %+v", peers)
	}
}

func TestSaveFileDialogFailsWithoutDelegate(t *testing.T) {
	a := New(session.NewController(metrics.New()))
	resp := a.SaveFileDialog(SaveFileDialogRequest{FileName: "f.txt", FileData: "aGVsbG8="})
	if resp.Success || resp.Error == "" {
		t.Fatalf("expected failure without a registered delegate, got %+v", resp)
	}
}

func TestSaveFileDialogDelegatesToUI(t *testing.T) {
	a := New(session.NewController(metrics.New()))
	var gotName string
	a.SetSaveFileDialogDelegate(func(req SaveFileDialogRequest) error {
		gotName = req.FileName
		return nil
	})
	resp := a.SaveFileDialog(SaveFileDialogRequest{FileName: "picture.png", FileData: "aGVsbG8="})
	if !resp.Success || gotName != "picture.png" {
		t.Fatalf("expected delegate invoked with the request, got %+v (gotName=%q)", resp, gotName)
	}
}

func TestStatusReflectsSentEnvelopes(t *testing.T) {
	a := New(session.NewController(metrics.New()))
	if resp := a.JoinRoom(JoinRequest{Room: "api-status-room", UserName: "Alice"}); !resp.Success {
		t.Fatalf("join failed: %+v", resp)
	}
	defer a.LeaveRoom()

	if resp := a.SendMessage(SendMessageRequest{Structure: []wire.Part{{Type: wire.PartText, Content: "hi"}}}); !resp.Success {
		t.Fatalf("send failed: %+v", resp)
	}
	snap := a.Status()
	if snap.EnvelopesSent == 0 {
		t.Fatalf("expected at least one sent envelope counted, got %+v", snap)
	}
}

func TestSendMessageEmitsNoEventToSender(t *testing.T) {
	ctl := session.NewController(metrics.New())
	a := New(ctl)
	if resp := a.JoinRoom(JoinRequest{Room: "api-event-room", UserName: "Alice"}); !resp.Success {
		t.Fatalf("join failed: %+v", resp)
	}
	defer a.LeaveRoom()

	if resp := a.SendMessage(SendMessageRequest{Structure: []wire.Part{{Type: wire.PartText, Content: "hi"}}}); !resp.Success {
		t.Fatalf("send failed: %+v", resp)
	}

	// SendMessage only logs and broadcasts locally; it does not emit a
	// new-message event back to its own sender (that event is for
	// messages received from peers), so this channel should stay empty.
	select {
	case ev := <-a.Events():
		t.Fatalf("did not expect an event from sending our own message, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}
