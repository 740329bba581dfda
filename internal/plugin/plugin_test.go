package plugin

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
)

func TestRunAnswersGetmanifestAndInit(t *testing.T) {
	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"getmanifest","params":{}}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"init","params":{}}` + "\n",
	)
	var out bytes.Buffer
	s := NewServer(nil, "self-pubkey", 65535, in, &out)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n\n")
	nonEmpty := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			nonEmpty = append(nonEmpty, l)
		}
	}
	if len(nonEmpty) != 2 {
		t.Fatalf("expected 2 responses, got %d: %q", len(nonEmpty), out.String())
	}

	var manifestResp struct {
		ID     int `json:"id"`
		Result struct {
			Hooks []map[string]string `json:"hooks"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(nonEmpty[0]), &manifestResp); err != nil {
		t.Fatalf("unmarshal getmanifest response: %v", err)
	}
	if manifestResp.ID != 1 {
		t.Fatalf("expected response id 1, got %d", manifestResp.ID)
	}
	if len(manifestResp.Result.Hooks) != 1 || manifestResp.Result.Hooks[0]["name"] != "custommsg" {
		t.Fatalf("expected the custommsg hook to be registered, got %v", manifestResp.Result.Hooks)
	}
}

func TestHandleCustomMsgIgnoresForeignMagic(t *testing.T) {
	var out bytes.Buffer
	s := NewServer(nil, "self-pubkey", 65535, strings.NewReader(""), &out)

	foreign := []byte("NOTHIVEFRAMEDATA")
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "custommsg",
		Params:  mustMarshal(t, map[string]any{"custommsg": map[string]any{"peer_id": "02aa", "payload": hex.EncodeToString(foreign)}}),
	}

	// handleCustomMsg must not touch s.k (nil) for a frame that fails the
	// magic check, since a foreign-plugin message is passed through
	// untouched rather than dispatched.
	s.handleCustomMsg(context.Background(), req)

	var resp struct {
		Result struct {
			Result string `json:"result"`
		} `json:"result"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Result.Result != "continue" {
		t.Fatalf("expected continue, got %q", resp.Result.Result)
	}
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
