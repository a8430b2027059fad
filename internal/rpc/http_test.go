package rpc

import (
	"encoding/json"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/nicolocarcagni/fulmine/internal/chain"
	"github.com/nicolocarcagni/fulmine/internal/crypto"
	"github.com/nicolocarcagni/fulmine/internal/ledger"
	"github.com/nicolocarcagni/fulmine/internal/validator"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir, err := os.MkdirTemp("", "fulmine-rpc-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	orch, err := validator.New(validator.Config{
		ValidatorID:      "v1",
		StorePath:        dir,
		GenesisTimestamp: 1000,
		BatchInterval:    time.Hour,
		MaxBatchSize:     10,
		TotalValidators:  1,
		InstantThreshold: 0.20,
		TimeoutWindow:    time.Hour,
		MempoolMaxSize:   100,
		MempoolExpireMs:  60_000,
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(orch)
}

func mustParams(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestDispatchGetBlockHeightAndLatestBlock(t *testing.T) {
	s := newTestServer(t)

	resp := s.dispatch(Request{ID: 1, Method: "getBlockHeight"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if resp.Result.(uint64) != 0 {
		t.Fatalf("block height = %v, want 0", resp.Result)
	}

	resp = s.dispatch(Request{ID: 2, Method: "getLatestBlock"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	block, ok := resp.Result.(chain.BlockData)
	if !ok {
		t.Fatalf("expected BlockData result, got %T", resp.Result)
	}
	if block.Number != 0 {
		t.Fatalf("latest block number = %d, want 0", block.Number)
	}
}

func TestDispatchGetBalanceAndNonce(t *testing.T) {
	s := newTestServer(t)

	resp := s.dispatch(Request{ID: 1, Method: "getBalance", Params: mustParams(t, []string{ledger.GenesisAddress})})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if resp.Result.(string) != ledger.GenesisSupply.String() {
		t.Fatalf("balance = %v, want %s", resp.Result, ledger.GenesisSupply)
	}

	resp = s.dispatch(Request{ID: 2, Method: "getNonce", Params: mustParams(t, []string{ledger.GenesisAddress})})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if resp.Result.(uint64) != 0 {
		t.Fatalf("nonce = %v, want 0", resp.Result)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	s := newTestServer(t)
	resp := s.dispatch(Request{ID: 1, Method: "notAMethod"})
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected method-not-found error, got %+v", resp.Error)
	}
}

func TestDispatchGetBalanceMissingParams(t *testing.T) {
	s := newTestServer(t)
	resp := s.dispatch(Request{ID: 1, Method: "getBalance", Params: mustParams(t, map[string]string{})})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("expected invalid-params error, got %+v", resp.Error)
	}
}

func TestDispatchSendTransactionAndGetTransaction(t *testing.T) {
	s := newTestServer(t)

	pubA, privA, _ := crypto.GenerateKeyPair()
	pubB, _, _ := crypto.GenerateKeyPair()

	if _, err := s.orch.ApplyGenesisTransfer(pubA, big.NewInt(10_000), big.NewInt(0), 0, 2000); err != nil {
		t.Fatal(err)
	}

	tx := chain.NewTransaction(pubA, pubB, big.NewInt(500), big.NewInt(5), 0, 3000)
	if err := tx.Sign(privA); err != nil {
		t.Fatal(err)
	}

	resp := s.dispatch(Request{ID: 1, Method: "sendTransaction", Params: mustParams(t, tx.ToJSON())})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	poolResp := s.dispatch(Request{ID: 2, Method: "getTransactionPoolSize"})
	if poolResp.Result.(int) != 1 {
		t.Fatalf("pool size = %v, want 1", poolResp.Result)
	}

	s.orch.ForceBatch()

	found := s.dispatch(Request{ID: 3, Method: "getTransaction", Params: mustParams(t, []string{tx.Hash})})
	if found.Error != nil {
		t.Fatalf("unexpected error: %+v", found.Error)
	}
	result, ok := found.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map result, got %T", found.Result)
	}
	if result["blockNumber"].(uint64) != 1 {
		t.Fatalf("blockNumber = %v, want 1", result["blockNumber"])
	}
}

func TestDispatchGetTransactionNotFound(t *testing.T) {
	s := newTestServer(t)
	resp := s.dispatch(Request{ID: 1, Method: "getTransaction", Params: mustParams(t, []string{"deadbeef"})})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if resp.Result != nil {
		t.Fatalf("expected nil result for unknown hash, got %v", resp.Result)
	}
}
