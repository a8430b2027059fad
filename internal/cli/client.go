package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// rpcRequest/rpcResponse mirror internal/rpc's JSON-RPC 2.0 envelope; the
// CLI talks to a running node the same way any external client would.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// callRPC issues a JSON-RPC call against rpcURL and unmarshals the result
// into out (pass a pointer, or nil to discard it).
func callRPC(rpcURL, method string, params interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(rpcURL+"/rpc", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("connecting to node at %s: %w", rpcURL, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decoding node response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("node returned error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out == nil || rpcResp.Result == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}
