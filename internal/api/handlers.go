package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"subdex/internal/ledger"
	"subdex/internal/market"
	"subdex/internal/numeric"
	"subdex/internal/pool"
)

type poolResponse struct {
	Pair    pool.PairKey   `json:"pair"`
	Account common.Address `json:"account"`
	Pool    pool.Pool      `json:"pool"`
}

type createRequest struct {
	Owner        common.Address `json:"owner"`
	FirstAmount  numeric.Amount `json:"first_amount"`
	SecondAmount numeric.Amount `json:"second_amount"`
}

type swapRequest struct {
	Sender       common.Address `json:"sender"`
	Direction    string         `json:"direction"`
	AmountIn     numeric.Amount `json:"amount_in"`
	MinAmountOut numeric.Amount `json:"min_amount_out"`
}

type investRequest struct {
	Owner  common.Address `json:"owner"`
	Shares numeric.Amount `json:"shares"`
}

type divestRequest struct {
	Owner     common.Address `json:"owner"`
	Shares    numeric.Amount `json:"shares"`
	MinFirst  numeric.Amount `json:"min_first"`
	MinSecond numeric.Amount `json:"min_second"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Codespace string `json:"codespace,omitempty"`
	Code      uint32 `json:"code,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	pairs, err := s.svc.Pools(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]poolResponse, 0, len(pairs))
	for _, pair := range pairs {
		p, err := s.svc.Pool(r.Context(), pair)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out = append(out, poolResponse{Pair: pair, Account: pair.Account(), Pool: p})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pairFromPath(w, r)
	if !ok {
		return
	}
	p, err := s.svc.Pool(r.Context(), pair)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, poolResponse{Pair: pair, Account: pair.Account(), Pool: p})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pairFromPath(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	dir, err := pool.ParseDirection(query.Get("direction"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := numeric.Parse(query.Get("amount"))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("invalid amount: %w", err))
		return
	}

	quote, err := s.svc.Quote(r.Context(), pair, dir, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleObservation(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pairFromPath(w, r)
	if !ok {
		return
	}
	obs, err := s.svc.Observe(r.Context(), pair)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pairFromPath(w, r)
	if !ok {
		return
	}
	var req createRequest
	if !decodeBody(w, r, &req) || !requireAccount(w, "owner", req.Owner) {
		return
	}

	shares, err := s.svc.CreatePool(r.Context(), pair, req.Owner, req.FirstAmount, req.SecondAmount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]numeric.Amount{"shares": shares})
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pairFromPath(w, r)
	if !ok {
		return
	}
	var req swapRequest
	if !decodeBody(w, r, &req) || !requireAccount(w, "sender", req.Sender) {
		return
	}

	dir := pool.FirstToSecond
	if req.Direction != "" {
		parsed, err := pool.ParseDirection(req.Direction)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		dir = parsed
	}

	res, err := s.svc.Swap(r.Context(), market.SwapRequest{
		Pair:         pair,
		Direction:    dir,
		Sender:       req.Sender,
		AmountIn:     req.AmountIn,
		MinAmountOut: req.MinAmountOut,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleInvest(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pairFromPath(w, r)
	if !ok {
		return
	}
	var req investRequest
	if !decodeBody(w, r, &req) || !requireAccount(w, "owner", req.Owner) {
		return
	}

	res, err := s.svc.Invest(r.Context(), pair, req.Owner, req.Shares)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDivest(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pairFromPath(w, r)
	if !ok {
		return
	}
	var req divestRequest
	if !decodeBody(w, r, &req) || !requireAccount(w, "owner", req.Owner) {
		return
	}

	res, err := s.svc.Divest(r.Context(), pair, req.Owner, req.Shares, req.MinFirst, req.MinSecond)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) pairFromPath(w http.ResponseWriter, r *http.Request) (pool.PairKey, bool) {
	vars := mux.Vars(r)
	pair, err := pool.NewPairKey(vars["first"], vars["second"])
	if err != nil {
		s.writeError(w, r, err)
		return pool.PairKey{}, false
	}
	return pair, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeBadRequest(w, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

// requireAccount rejects a missing address, which decodes to the zero address.
func requireAccount(w http.ResponseWriter, field string, addr common.Address) bool {
	if addr == (common.Address{}) {
		writeBadRequest(w, fmt.Errorf("%s is required", field))
		return false
	}
	return true
}

// writeError maps registered pool and custody errors to 400 with their
// code and a lost write race to 409. Anything else is a server fault.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, market.ErrStalePool) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	codespace, code, ok := pool.ErrorCode(err)
	if ok && (codespace == pool.Codespace || codespace == ledger.Codespace) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Codespace: codespace, Code: code})
		return
	}

	s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
