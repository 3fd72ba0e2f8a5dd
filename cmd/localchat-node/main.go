// Command localchat-node is a headless LAN chat node: it joins a room,
// streams chat traffic to stdout, and accepts line-oriented commands on
// stdin. It embodies the single-process event-loop model of spec §5 —
// there is no separate daemon to query, so "peers" and "status" are
// in-process commands rather than a second CLI invocation.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"localchat/internal/api"
	"localchat/internal/metrics"
	"localchat/internal/session"
	"localchat/internal/wire"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(stdout)
		return 0
	}
	switch args[0] {
	case "run":
		return runNode(args[1:], stdin, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: localchat-node run --room <name> [--name <display-name>]")
	fmt.Fprintln(w, "once running, stdin accepts:")
	fmt.Fprintln(w, "  /peers        list known peers")
	fmt.Fprintln(w, "  /status       print local session status")
	fmt.Fprintln(w, "  /quit         leave the room and exit")
	fmt.Fprintln(w, "  anything else is sent as a text message")
}

func runNode(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	room := fs.String("room", "", "room name to join")
	name := fs.String("name", "Anonymous", "display name")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *room == "" {
		fmt.Fprintln(stderr, "missing --room")
		return 1
	}
	if *debug {
		_ = os.Setenv("LOCALCHAT_DEBUG", "1")
	}

	a := api.New(session.NewController(metrics.New()))
	resp := a.JoinRoom(api.JoinRequest{Room: *room, UserName: *name})
	if !resp.Success {
		fmt.Fprintf(stderr, "join failed: %s\n", resp.Error)
		return 1
	}
	fmt.Fprintf(stdout, "joined %q on port %d as %s\n", *room, resp.Port, *name)

	done := make(chan struct{})
	go printEvents(a, stdout, done)
	defer close(done)

	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch {
		case line == "/quit":
			a.LeaveRoom()
			fmt.Fprintln(stdout, "left room")
			return 0
		case line == "/peers":
			printPeers(a, stdout)
		case line == "/status":
			printStatus(a, stdout)
		default:
			sendText(a, stdout, stderr, line)
		}
	}
	a.LeaveRoom()
	return 0
}

func sendText(a *api.API, stdout, stderr io.Writer, text string) {
	resp := a.SendMessage(api.SendMessageRequest{
		Structure: []wire.Part{{Type: wire.PartText, Content: text}},
	})
	if !resp.Success {
		fmt.Fprintf(stderr, "send failed: %s\n", resp.Error)
		return
	}
	fmt.Fprintf(stdout, "sent %s\n", resp.Message.MessageID)
}

func printPeers(a *api.API, stdout io.Writer) {
	peers := a.GetPeers()
	if len(peers) == 0 {
		fmt.Fprintln(stdout, "no peers")
		return
	}
	for _, p := range peers {
		fmt.Fprintf(stdout, "%s %s\n", p.PeerID, p.DisplayName)
	}
}

func printStatus(a *api.API, stdout io.Writer) {
	snap := a.Status()
	fmt.Fprintf(stdout, "peers: %d\n", len(a.GetPeers()))
	fmt.Fprintf(stdout, "envelopes sent=%d received=%d dedup_rejects=%d aead_failures=%d decode_failures=%d peers_evicted=%d files_reassembled=%d\n",
		snap.EnvelopesSent, snap.EnvelopesRecv, snap.DedupRejects, snap.AeadFailures, snap.DecodeFailures, snap.PeersEvicted, snap.FilesReassembled)
}

func printEvents(a *api.API, stdout io.Writer, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev := <-a.Events():
			printEvent(stdout, ev)
		}
	}
}

func printEvent(stdout io.Writer, ev api.EventEnvelope) {
	switch ev.Kind {
	case api.EventNewMessage:
		if ev.Message != nil {
			fmt.Fprintf(stdout, "[%s] %s\n", ev.Message.Sender, renderStructure(ev.Message.Structure))
		}
	case api.EventFileChunkReceived:
		if ev.Chunk != nil {
			fmt.Fprintf(stdout, "[file %s] chunk %d/%d complete=%v\n",
				ev.Chunk.FileID, ev.Chunk.ChunkIndex+1, ev.Chunk.TotalChunks, ev.Chunk.Complete)
		}
	case api.EventHistoryReceived:
		fmt.Fprintf(stdout, "[history] %d messages\n", len(ev.Messages))
	case api.EventError:
		fmt.Fprintf(stdout, "[error] %s\n", ev.Error)
	}
}

func renderStructure(parts []wire.Part) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteString(" ")
		}
		switch p.Type {
		case wire.PartText:
			b.WriteString(p.Content)
		case wire.PartFile:
			fmt.Fprintf(&b, "[file:%s]", p.ID)
		}
	}
	return b.String()
}
