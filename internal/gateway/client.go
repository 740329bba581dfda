// Package gateway is the thin adapter to the host Lightning daemon's
// JSON-RPC socket, wrapped in a circuit breaker so a stuck or crashed
// host process can't stall the kernel loop (spec.md §4.2). It mirrors
// the teacher's bitcoin.Client: one struct wrapping a transport, a
// RawRequest-shaped escape hatch for calls with no typed wrapper, and
// narrow capability methods layered on top.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightning-goats/cl-hive-sub000/internal/codec"
	"github.com/lightning-goats/cl-hive-sub000/internal/kerrors"
	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

// Config points the Gateway at the host daemon's JSON-RPC unix socket.
type Config struct {
	SocketPath   string
	CallTimeout  time.Duration
	MaxFailures  int
	ResetTimeout time.Duration
}

// Client is the narrow capability surface over the host daemon, guarded
// by a circuit breaker.
type Client struct {
	cfg     Config
	breaker *CircuitBreaker
	nextID  int64

	mu sync.Mutex
}

// NewClient builds a Gateway client. It does not dial eagerly — the
// socket is opened per call, matching a CLN plugin's RPC transport.
func NewClient(cfg Config) *Client {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &Client{
		cfg:     cfg,
		breaker: NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout),
	}
}

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// RawRequest sends method with params over the host RPC socket, subject
// to the circuit breaker. This is the one place that touches the wire;
// every capability method below is a thin typed wrapper around it.
func (c *Client) RawRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !c.breaker.Allow() {
		return nil, kerrors.New(kerrors.TransientHost, "circuit open: "+method)
	}

	result, err := c.call(ctx, method, params)
	if err != nil {
		c.breaker.RecordFailure()
		log.Printf("[Gateway] %s failed: %v", method, err)
		return nil, kerrors.Wrap(kerrors.TransientHost, "host rpc failed: "+method, err)
	}
	c.breaker.RecordSuccess()
	return result, nil
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	paramBytes, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	id := atomic.AddInt64(&c.nextID, 1)
	reqBody, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: paramBytes})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	dialer := net.Dialer{Timeout: c.cfg.CallTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("dial host rpc socket: %w", err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.cfg.CallTimeout)
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(append(reqBody, '\n')); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	var buf bytes.Buffer
	chunk := make([]byte, 4096)
	for {
		n, readErr := conn.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			var resp jsonRPCResponse
			if json.Unmarshal(buf.Bytes(), &resp) == nil {
				if resp.Error != nil {
					return nil, fmt.Errorf("%d: %s", resp.Error.Code, resp.Error.Message)
				}
				return resp.Result, nil
			}
		}
		if readErr != nil {
			return nil, fmt.Errorf("read response: %w", readErr)
		}
	}
}

// Sign requests the host sign msg with the node's identity key, returning
// a zbase-encoded signature.
func (c *Client) Sign(ctx context.Context, msg string) (string, error) {
	raw, err := c.RawRequest(ctx, "signmessage", map[string]any{"message": msg})
	if err != nil {
		return "", err
	}
	var out struct {
		ZBase string `json:"zbase"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", kerrors.Wrap(kerrors.TransientHost, "unmarshal signmessage", err)
	}
	return out.ZBase, nil
}

// VerifyResult is the host's check of a signature against a message.
type VerifyResult struct {
	Verified bool   `json:"verified"`
	Pubkey   string `json:"pubkey"`
}

// Verify asks the host to check sig against msg. Per the source's
// defensive check (carried over deliberately, spec.md §9), a result
// reporting verified=true with a pubkey that does not match the expected
// signer must still be treated as a failure by the caller.
func (c *Client) Verify(ctx context.Context, msg, sig string) (VerifyResult, error) {
	raw, err := c.RawRequest(ctx, "checkmessage", map[string]any{"message": msg, "zbase": sig})
	if err != nil {
		return VerifyResult{}, err
	}
	var out VerifyResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return VerifyResult{}, kerrors.Wrap(kerrors.TransientHost, "unmarshal checkmessage", err)
	}
	return out, nil
}

// VerifySigner verifies sig over msg and additionally enforces that the
// recovered pubkey equals expectedSigner; a verified=true response from a
// different key is treated as SignatureMismatch, not success.
func (c *Client) VerifySigner(ctx context.Context, msg, sig, expectedSigner string) error {
	result, err := c.Verify(ctx, msg, sig)
	if err != nil {
		return err
	}
	if !result.Verified || result.Pubkey != expectedSigner {
		return kerrors.New(kerrors.SignatureMismatch, "signature does not verify for expected signer")
	}
	return nil
}

// PeerChannel is one entry of list_peer_channels.
type PeerChannel struct {
	PeerID              string `json:"peer_id"`
	ChannelID           string `json:"channel_id"`
	State               string `json:"state"`
	ToUsMsat            int64  `json:"to_us_msat"`
	TotalMsat           int64  `json:"total_msat"`
	SpendableMsat       int64  `json:"spendable_msat"`
	ReceivableMsat      int64  `json:"receivable_msat"`
	Private             bool   `json:"private"`
}

// ListPeerChannels returns the node's current channel set.
func (c *Client) ListPeerChannels(ctx context.Context) ([]PeerChannel, error) {
	raw, err := c.RawRequest(ctx, "listpeerchannels", map[string]any{})
	if err != nil {
		return nil, err
	}
	var out struct {
		Channels []PeerChannel `json:"channels"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, kerrors.Wrap(kerrors.TransientHost, "unmarshal listpeerchannels", err)
	}
	return out.Channels, nil
}

// Funds is the result of list_funds: on-chain and channel balances.
type Funds struct {
	ChannelsTotalOurAmountMsat int64 `json:"channels_total_our_amount_msat"`
	OnChainTotalMsat           int64 `json:"on_chain_total_msat"`
}

// ListFunds returns the node's current fund summary.
func (c *Client) ListFunds(ctx context.Context) (Funds, error) {
	raw, err := c.RawRequest(ctx, "listfunds", map[string]any{})
	if err != nil {
		return Funds{}, err
	}
	var wrapper struct {
		Channels []struct {
			OurAmountMsat int64 `json:"our_amount_msat"`
		} `json:"channels"`
		Outputs []struct {
			AmountMsat int64 `json:"amount_msat"`
		} `json:"outputs"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return Funds{}, kerrors.Wrap(kerrors.TransientHost, "unmarshal listfunds", err)
	}

	var funds Funds
	for _, ch := range wrapper.Channels {
		funds.ChannelsTotalOurAmountMsat += ch.OurAmountMsat
	}
	for _, o := range wrapper.Outputs {
		funds.OnChainTotalMsat += o.AmountMsat
	}
	return funds, nil
}

// SendCustomMsg delivers a raw hive wire frame to peer over the host's
// custom-message transport.
func (c *Client) SendCustomMsg(ctx context.Context, peer string, frame []byte) error {
	_, err := c.RawRequest(ctx, "sendcustommsg", map[string]any{
		"node_id": peer,
		"msg":     fmt.Sprintf("%x", frame),
	})
	return err
}

// Broadcast encodes v as a hive wire frame of type t and fans it out to
// every peer in recipients over SendCustomMsg. A delivery failure to one
// peer is logged and does not stop delivery to the rest; the first error
// encountered is returned to the caller for visibility.
func (c *Client) Broadcast(ctx context.Context, recipients []string, t hivewire.MessageType, v any) error {
	frame, err := codec.EncodeJSON(t, v)
	if err != nil {
		return fmt.Errorf("encode broadcast frame: %w", err)
	}
	var firstErr error
	for _, peer := range recipients {
		if err := c.SendCustomMsg(ctx, peer, frame); err != nil {
			log.Printf("[Gateway] broadcast %s to %s failed: %v", t, peer, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// OpenChannelResult is the outcome of a fundchannel call.
type OpenChannelResult struct {
	TxID      string `json:"txid"`
	ChannelID string `json:"channel_id"`
}

// OpenChannel opens a channel to peer funded with amountSats.
func (c *Client) OpenChannel(ctx context.Context, peer string, amountSats int64) (OpenChannelResult, error) {
	raw, err := c.RawRequest(ctx, "fundchannel", map[string]any{
		"id":     peer,
		"amount": amountSats,
	})
	if err != nil {
		return OpenChannelResult{}, err
	}
	var out OpenChannelResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return OpenChannelResult{}, kerrors.Wrap(kerrors.TransientHost, "unmarshal fundchannel", err)
	}
	return out, nil
}

// CloseChannel requests a cooperative close of channelID.
func (c *Client) CloseChannel(ctx context.Context, channelID string) error {
	_, err := c.RawRequest(ctx, "close", map[string]any{"id": channelID})
	return err
}

// SpliceInit begins a splice against channelID, adjusting its capacity by
// relativeAmountSats (positive to add, negative to remove).
func (c *Client) SpliceInit(ctx context.Context, channelID string, relativeAmountSats int64) (string, error) {
	raw, err := c.RawRequest(ctx, "splice_init", map[string]any{
		"channel_id":  channelID,
		"relative_amount": relativeAmountSats,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		PSBT string `json:"psbt"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", kerrors.Wrap(kerrors.TransientHost, "unmarshal splice_init", err)
	}
	return out.PSBT, nil
}

// SpliceUpdate advances a splice negotiation with an updated PSBT.
func (c *Client) SpliceUpdate(ctx context.Context, channelID, psbt string) (string, bool, error) {
	raw, err := c.RawRequest(ctx, "splice_update", map[string]any{
		"channel_id": channelID,
		"psbt":       psbt,
	})
	if err != nil {
		return "", false, err
	}
	var out struct {
		PSBT    string `json:"psbt"`
		Commitments bool `json:"commitments_secured"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", false, kerrors.Wrap(kerrors.TransientHost, "unmarshal splice_update", err)
	}
	return out.PSBT, out.Commitments, nil
}

// SpliceSigned finalizes and broadcasts the splice transaction.
func (c *Client) SpliceSigned(ctx context.Context, channelID, psbt string) (string, error) {
	raw, err := c.RawRequest(ctx, "splice_signed", map[string]any{
		"channel_id": channelID,
		"psbt":       psbt,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		TxID string `json:"txid"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", kerrors.Wrap(kerrors.TransientHost, "unmarshal splice_signed", err)
	}
	return out.TxID, nil
}

// Offer creates a BOLT12 offer for amountSats with the given description,
// used for settlement payment requests between members.
func (c *Client) Offer(ctx context.Context, amountSats int64, description string) (string, error) {
	raw, err := c.RawRequest(ctx, "offer", map[string]any{
		"amount":      fmt.Sprintf("%dsat", amountSats),
		"description": description,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Bolt12 string `json:"bolt12"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", kerrors.Wrap(kerrors.TransientHost, "unmarshal offer", err)
	}
	return out.Bolt12, nil
}

// FetchInvoice resolves a BOLT12 offer into a payable invoice.
func (c *Client) FetchInvoice(ctx context.Context, offer string, amountSats int64) (string, error) {
	raw, err := c.RawRequest(ctx, "fetchinvoice", map[string]any{
		"offer":  offer,
		"amount": fmt.Sprintf("%dsat", amountSats),
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Invoice string `json:"invoice"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", kerrors.Wrap(kerrors.TransientHost, "unmarshal fetchinvoice", err)
	}
	return out.Invoice, nil
}

// PayResult is the outcome of settling a BOLT11/BOLT12 invoice.
type PayResult struct {
	PaymentHash string `json:"payment_hash"`
	AmountMsat  int64  `json:"amount_msat"`
	Status      string `json:"status"`
}

// Pay settles invoice, used to execute a member's SETTLEMENT_EXECUTED
// payout.
func (c *Client) Pay(ctx context.Context, invoice string) (PayResult, error) {
	raw, err := c.RawRequest(ctx, "pay", map[string]any{"bolt11": invoice})
	if err != nil {
		return PayResult{}, err
	}
	var out PayResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return PayResult{}, kerrors.Wrap(kerrors.TransientHost, "unmarshal pay", err)
	}
	return out, nil
}

// BreakerOpen reports whether the circuit is currently failing fast,
// letting the scheduler skip a cycle rather than pile up requests.
func (c *Client) BreakerOpen() bool {
	return c.breaker.Open()
}
