// Package rpc is the external-interface surface: a JSON-RPC 2.0 dispatcher
// plus thin REST aliases around the validator orchestrator, with per-IP
// rate limiting and a websocket event feed.
package rpc

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicolocarcagni/fulmine/internal/chain"
	"github.com/nicolocarcagni/fulmine/internal/validator"
)

// JSON-RPC 2.0 error codes.
const (
	CodeInvalidRequest      = -32600
	CodeMethodNotFound      = -32601
	CodeInvalidParams       = -32602
	CodeInternal            = -32603
	CodeTransactionRejected = -32000
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func errResponse(id interface{}, code int, msg string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: msg}}
}

func okResponse(id interface{}, result interface{}) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

// Server is the HTTP/JSON-RPC/websocket front door around an Orchestrator.
type Server struct {
	orch   *validator.Orchestrator
	events *EventHub
}

// NewServer wraps orch with an RPC/REST/websocket surface.
func NewServer(orch *validator.Orchestrator) *Server {
	s := &Server{orch: orch, events: NewEventHub()}
	orch.Subscribe(s.events.publishOrchestratorEvent)
	return s
}

// Start builds the router and blocks serving on listenHost:port.
func (s *Server) Start(listenHost string, port int) error {
	router := mux.NewRouter()
	router.Use(commonMiddleware)

	readLimiter := NewIPRateLimiter(20, 30)
	writeLimiter := NewIPRateLimiter(5, 10)
	readMW := RateLimitMiddleware(readLimiter)
	writeMW := RateLimitMiddleware(writeLimiter)

	router.Handle("/rpc", writeMW(http.HandlerFunc(s.handleRPC))).Methods("POST")

	router.Handle("/blocks/height", readMW(http.HandlerFunc(s.restBlockHeight))).Methods("GET")
	router.Handle("/blocks/latest", readMW(http.HandlerFunc(s.restLatestBlock))).Methods("GET")
	router.Handle("/blocks/{number}", readMW(http.HandlerFunc(s.restBlock))).Methods("GET")
	router.Handle("/accounts/{address}", readMW(http.HandlerFunc(s.restAccount))).Methods("GET")
	router.Handle("/accounts/{address}/balance", readMW(http.HandlerFunc(s.restBalance))).Methods("GET")
	router.Handle("/accounts/{address}/nonce", readMW(http.HandlerFunc(s.restNonce))).Methods("GET")
	router.Handle("/mempool/size", readMW(http.HandlerFunc(s.restMempoolSize))).Methods("GET")
	router.Handle("/stats", readMW(http.HandlerFunc(s.restStats))).Methods("GET")
	router.Handle("/batches/pending", readMW(http.HandlerFunc(s.restPendingBatches))).Methods("GET")
	router.Handle("/batches/finalized", readMW(http.HandlerFunc(s.restFinalizedBatches))).Methods("GET")
	router.Handle("/batches/{id}", readMW(http.HandlerFunc(s.restBatch))).Methods("GET")
	router.Handle("/transactions", writeMW(http.HandlerFunc(s.restSendTransaction))).Methods("POST")
	router.Handle("/transactions/{hash}", readMW(http.HandlerFunc(s.restTransaction))).Methods("GET")
	router.HandleFunc("/events", s.events.ServeWS)

	addr := fmt.Sprintf("%s:%d", listenHost, port)
	log.Printf("fulmine RPC server listening on http://%s\n", addr)

	srv := &http.Server{
		Handler:      CORSMiddleware(router),
		Addr:         addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
	return srv.ListenAndServe()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleRPC dispatches a single JSON-RPC 2.0 request.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, errResponse(nil, CodeInvalidRequest, "malformed request body"))
		return
	}
	writeJSON(w, http.StatusOK, s.dispatch(req))
}

// dispatch maps a JSON-RPC method name to an orchestrator call.
func (s *Server) dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, s.orch.GetLatestBlock().Number)

	case "getLatestBlock":
		return okResponse(req.ID, s.orch.GetLatestBlock().ToJSON())

	case "getBlock":
		n, ok := parseIndexParam(req.Params)
		if !ok {
			return errResponse(req.ID, CodeInvalidParams, "expected {index} or [n]")
		}
		b := s.orch.GetBlock(n)
		if b == nil {
			return okResponse(req.ID, nil)
		}
		return okResponse(req.ID, b.ToJSON())

	case "getBalance":
		addr, ok := parseAddressParam(req.Params)
		if !ok {
			return errResponse(req.ID, CodeInvalidParams, "expected {address} or [addr]")
		}
		return okResponse(req.ID, s.orch.GetBalance(addr).String())

	case "getNonce":
		addr, ok := parseAddressParam(req.Params)
		if !ok {
			return errResponse(req.ID, CodeInvalidParams, "expected {address} or [addr]")
		}
		return okResponse(req.ID, s.orch.GetNonce(addr))

	case "getAccount":
		addr, ok := parseAddressParam(req.Params)
		if !ok {
			return errResponse(req.ID, CodeInvalidParams, "expected {address}")
		}
		acc := s.orch.GetAccount(addr)
		return okResponse(req.ID, map[string]interface{}{
			"address": acc.Address,
			"balance": acc.Balance.String(),
			"nonce":   acc.Nonce,
		})

	case "getTransactionPoolSize":
		return okResponse(req.ID, s.orch.GetStats().PendingTransactions)

	case "sendTransaction":
		var data chain.TxData
		if err := json.Unmarshal(req.Params, &data); err != nil {
			return errResponse(req.ID, CodeInvalidParams, "malformed transaction")
		}
		tx, err := chain.TransactionFromJSON(data)
		if err != nil {
			return errResponse(req.ID, CodeInvalidParams, err.Error())
		}
		if !s.orch.AddTransaction(tx) {
			return errResponse(req.ID, CodeTransactionRejected, "transaction rejected")
		}
		return okResponse(req.ID, map[string]interface{}{"success": true, "hash": tx.Hash})

	case "getTransaction":
		hash, ok := parseHashParam(req.Params)
		if !ok {
			return errResponse(req.ID, CodeInvalidParams, "expected {hash} or [hash]")
		}
		tx, blockNumber, found := s.orch.GetTransaction(hash)
		if !found {
			return okResponse(req.ID, nil)
		}
		out := tx.ToJSON()
		return okResponse(req.ID, map[string]interface{}{
			"transaction": out,
			"blockNumber": blockNumber,
		})

	case "getValidatorStats", "getNetworkStats":
		return okResponse(req.ID, s.orch.GetStats())

	case "getBatch":
		id, ok := parseBatchIDParam(req.Params)
		if !ok {
			return errResponse(req.ID, CodeInvalidParams, "expected {batchId}")
		}
		return okResponse(req.ID, s.orch.GetBatchAcks(id))

	case "getFinalizedBatches":
		return okResponse(req.ID, s.orch.GetFinalizedBatches())

	case "getPendingBatches":
		return okResponse(req.ID, s.orch.GetPendingBatches())

	default:
		return errResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func parseIndexParam(raw json.RawMessage) (uint64, bool) {
	var positional []uint64
	if err := json.Unmarshal(raw, &positional); err == nil && len(positional) == 1 {
		return positional[0], true
	}
	var named struct {
		Index *uint64 `json:"index"`
	}
	if err := json.Unmarshal(raw, &named); err == nil && named.Index != nil {
		return *named.Index, true
	}
	return 0, false
}

func parseAddressParam(raw json.RawMessage) (string, bool) {
	var named struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(raw, &named); err == nil && named.Address != "" {
		return named.Address, true
	}
	var positional []string
	if err := json.Unmarshal(raw, &positional); err == nil && len(positional) == 1 {
		return positional[0], true
	}
	return "", false
}

func parseHashParam(raw json.RawMessage) (string, bool) {
	var named struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(raw, &named); err == nil && named.Hash != "" {
		return named.Hash, true
	}
	var positional []string
	if err := json.Unmarshal(raw, &positional); err == nil && len(positional) == 1 {
		return positional[0], true
	}
	return "", false
}

func parseBatchIDParam(raw json.RawMessage) (string, bool) {
	var named struct {
		BatchID string `json:"batchId"`
	}
	if err := json.Unmarshal(raw, &named); err == nil && named.BatchID != "" {
		return named.BatchID, true
	}
	return "", false
}

// REST aliases — thin mappings onto the same orchestrator calls.

func (s *Server) restBlockHeight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"height": s.orch.GetLatestBlock().Number})
}

func (s *Server) restLatestBlock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.GetLatestBlock().ToJSON())
}

func (s *Server) restBlock(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(mux.Vars(r)["number"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody("invalid block number"))
		return
	}
	b := s.orch.GetBlock(n)
	if b == nil {
		writeJSON(w, http.StatusNotFound, nil)
		return
	}
	writeJSON(w, http.StatusOK, b.ToJSON())
}

func (s *Server) restAccount(w http.ResponseWriter, r *http.Request) {
	acc := s.orch.GetAccount(mux.Vars(r)["address"])
	writeJSON(w, http.StatusOK, acc.ToJSON())
}

func (s *Server) restBalance(w http.ResponseWriter, r *http.Request) {
	bal := s.orch.GetBalance(mux.Vars(r)["address"])
	writeJSON(w, http.StatusOK, map[string]string{"balance": bal.String()})
}

func (s *Server) restNonce(w http.ResponseWriter, r *http.Request) {
	nonce := s.orch.GetNonce(mux.Vars(r)["address"])
	writeJSON(w, http.StatusOK, map[string]uint64{"nonce": nonce})
}

func (s *Server) restMempoolSize(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"size": s.orch.GetStats().PendingTransactions})
}

func (s *Server) restStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.GetStats())
}

func (s *Server) restPendingBatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.GetPendingBatches())
}

func (s *Server) restFinalizedBatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.GetFinalizedBatches())
}

func (s *Server) restBatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	writeJSON(w, http.StatusOK, s.orch.GetBatchAcks(id))
}

func (s *Server) restTransaction(w http.ResponseWriter, r *http.Request) {
	tx, blockNumber, found := s.orch.GetTransaction(mux.Vars(r)["hash"])
	if !found {
		writeJSON(w, http.StatusNotFound, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transaction": tx.ToJSON(),
		"blockNumber": blockNumber,
	})
}

func (s *Server) restSendTransaction(w http.ResponseWriter, r *http.Request) {
	var data chain.TxData
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody("malformed transaction"))
		return
	}
	tx, err := chain.TransactionFromJSON(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody(err.Error()))
		return
	}
	if !s.orch.AddTransaction(tx) {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorBody("transaction rejected"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "hash": tx.Hash})
}

// ErrorBody is the REST error envelope.
func ErrorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
