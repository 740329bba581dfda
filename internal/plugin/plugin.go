// Package plugin implements the host-daemon side of the hive agent's
// transport: a Core Lightning style plugin speaking line-delimited
// JSON-RPC over stdin/stdout. getmanifest/init perform the handshake the
// host expects at startup; the custommsg hook is the inbound half of the
// wire protocol that codec and gateway.Client otherwise only speak
// outbound (frames arrive here, get decoded, and are handed to
// Kernel.Dispatch); forward_event notifications feed Kernel.RecordForward
// so settlement standings track real routed fees rather than only
// self-originated reports.
package plugin

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/lightning-goats/cl-hive-sub000/internal/codec"
	"github.com/lightning-goats/cl-hive-sub000/internal/kernel"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
}

// Server is the plugin-side JSON-RPC loop: it owns no state of its own
// beyond what's needed to answer the host's handshake, deferring every
// protocol decision to the Kernel.
type Server struct {
	k               *kernel.Kernel
	selfPubkey      string
	maxMessageBytes int

	in  *bufio.Reader
	out io.Writer
}

// NewServer builds a Server reading requests from in and writing
// responses to out — ordinarily os.Stdin/os.Stdout, swapped for pipes
// in tests.
func NewServer(k *kernel.Kernel, selfPubkey string, maxMessageBytes int, in io.Reader, out io.Writer) *Server {
	return &Server{
		k:               k,
		selfPubkey:      selfPubkey,
		maxMessageBytes: maxMessageBytes,
		in:              bufio.NewReader(in),
		out:             out,
	}
}

// Run reads one JSON-RPC object per line until in is closed or ctx is
// canceled, dispatching each to its handler. A malformed line is logged
// and skipped rather than killing the loop: one bad frame from a
// misbehaving peer should not take the plugin down.
func (s *Server) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line, err := s.in.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if len(line) == 0 {
			continue
		}
		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			log.Printf("[Plugin] malformed request: %v", err)
			continue
		}
		s.handle(ctx, req)
	}
}

func (s *Server) handle(ctx context.Context, req rpcRequest) {
	switch req.Method {
	case "getmanifest":
		s.respond(req.ID, manifest())
	case "init":
		s.respond(req.ID, map[string]any{})
	case "custommsg":
		s.handleCustomMsg(ctx, req)
	case "forward_event":
		s.handleForwardEvent(ctx, req)
	default:
		// Hooks and subscriptions we did not register for still arrive if
		// the host's manifest negotiation changes; silently acking an
		// unknown hook would misrepresent what we handled, so only hooks
		// get a response at all (notifications expect none).
		if req.ID != nil {
			s.respond(req.ID, map[string]any{"result": "continue"})
		}
	}
}

// manifest declares the hooks and subscriptions this plugin needs: the
// custommsg hook for inbound hive wire frames and the forward_event
// notification for contribution accounting.
func manifest() map[string]any {
	return map[string]any{
		"options":       []any{},
		"rpcmethods":    []any{},
		"subscriptions": []string{"forward_event"},
		"hooks":         []map[string]string{{"name": "custommsg"}},
		"dynamic":       true,
	}
}

type customMsgParams struct {
	PeerID  string `json:"peer_id"`
	Payload string `json:"payload"`
}

// handleCustomMsg decodes the hex-encoded custommsg payload as a hive
// wire frame and dispatches it. A frame that fails codec.Decode's magic
// check (ok=false, no error) belongs to another plugin entirely and is
// passed through with "continue" exactly as CLN expects from a hook that
// declines to act on a message.
func (s *Server) handleCustomMsg(ctx context.Context, req rpcRequest) {
	var p struct {
		CustomMsg customMsgParams `json:"custommsg"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		log.Printf("[Plugin] malformed custommsg params: %v", err)
		s.respond(req.ID, map[string]any{"result": "continue"})
		return
	}

	raw, err := hex.DecodeString(p.CustomMsg.Payload)
	if err != nil {
		log.Printf("[Plugin] custommsg payload from %s is not valid hex: %v", p.CustomMsg.PeerID, err)
		s.respond(req.ID, map[string]any{"result": "continue"})
		return
	}

	frame, ok, kerr := codec.Decode(raw, s.maxMessageBytes)
	if !ok {
		s.respond(req.ID, map[string]any{"result": "continue"})
		return
	}
	if kerr != nil {
		log.Printf("[Plugin] custommsg from %s rejected: %v", p.CustomMsg.PeerID, kerr)
		s.respond(req.ID, map[string]any{"result": "continue"})
		return
	}

	now := time.Now().Unix()
	if err := s.k.Dispatch(ctx, p.CustomMsg.PeerID, frame, now); err != nil {
		log.Printf("[Plugin] dispatch %s from %s failed: %v", frame.Type, p.CustomMsg.PeerID, err)
	}
	s.respond(req.ID, map[string]any{"result": "continue"})
}

type forwardEventParams struct {
	ForwardEvent struct {
		Status     string `json:"status"`
		OutChannel string `json:"out_channel"`
		FeeMsat    int64  `json:"fee_msat"`
	} `json:"forward_event"`
}

// handleForwardEvent feeds settled forwards into the contribution ledger.
// Only "settled" forwards count; "failed"/"local_failed" ones never moved
// real sats and would otherwise let a peer farm contribution credit by
// routing failing payments through us.
func (s *Server) handleForwardEvent(ctx context.Context, req rpcRequest) {
	var p forwardEventParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		log.Printf("[Plugin] malformed forward_event params: %v", err)
		return
	}
	if p.ForwardEvent.Status != "settled" {
		return
	}
	now := time.Now().Unix()
	if err := s.k.RecordForward(ctx, p.ForwardEvent.OutChannel, p.ForwardEvent.FeeMsat, now); err != nil {
		log.Printf("[Plugin] record forward on %s failed: %v", p.ForwardEvent.OutChannel, err)
	}
}

func (s *Server) respond(id json.RawMessage, result any) {
	resp := rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
	enc, err := json.Marshal(resp)
	if err != nil {
		log.Printf("[Plugin] marshal response: %v", err)
		return
	}
	fmt.Fprintf(s.out, "%s\n\n", enc)
}
