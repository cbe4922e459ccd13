package gateway

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"towerledger/crypto"
	"towerledger/ledger"
)

type statusResponse struct {
	Section       uint8  `json:"section"`
	Stage         uint64 `json:"stage"`
	Price         string `json:"price"`
	PrivateRound  bool   `json:"privateRound"`
	ItemsLeft     uint64 `json:"itemsLeft"`
	TokensInStake uint64 `json:"tokensInStake"`
}

type stakeResponse struct {
	TokenID         uint64 `json:"tokenId"`
	Owner           string `json:"owner"`
	StakedAt        int64  `json:"stakedAt"`
	RewardClaimedAt int64  `json:"rewardClaimedAt"`
	Rentable        bool   `json:"rentable"`
}

type tokensResponse struct {
	Owner  string   `json:"owner"`
	Tokens []uint64 `json:"tokens"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes the ledger's query surface over HTTP. It never mutates
// engine state.
type Server struct {
	svc *ledger.Service
	log *slog.Logger
}

// NewServer builds a gateway over the ledger service.
func NewServer(svc *ledger.Service, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{svc: svc, log: log}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/gate/status", s.handleGateStatus)
		v1.Get("/staking/stakes/{id}", s.handleStakeInfo)
		v1.Get("/staking/owners/{addr}/tokens", s.handleOwnerTokens)
	})
	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Debug("gateway response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleGateStatus(w http.ResponseWriter, r *http.Request) {
	status := s.svc.Status()
	price := "0"
	if status.Price != nil {
		price = status.Price.String()
	}
	s.writeJSON(w, http.StatusOK, statusResponse{
		Section:       status.Section,
		Stage:         status.Stage,
		Price:         price,
		PrivateRound:  status.PrivateRound,
		ItemsLeft:     status.Remaining,
		TokensInStake: status.TokensInStake,
	})
}

func (s *Server) handleStakeInfo(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}
	rec, ok := s.svc.StakeInfo(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "token is not staked")
		return
	}
	s.writeJSON(w, http.StatusOK, stakeResponse{
		TokenID:         rec.TokenID,
		Owner:           crypto.NewAddress(crypto.TowerPrefix, append([]byte(nil), rec.Owner[:]...)).String(),
		StakedAt:        rec.StakedAt,
		RewardClaimedAt: rec.RewardClaimedAt,
		Rentable:        rec.Rental.Rentable,
	})
}

// decodeAccount accepts either a bech32 ledger address or 40 hex characters.
func decodeAccount(raw string) ([20]byte, bool) {
	var out [20]byte
	raw = strings.TrimSpace(raw)
	if decoded, err := crypto.DecodeAddress(raw); err == nil {
		copy(out[:], decoded.Bytes())
		return out, true
	}
	trimmed := strings.TrimPrefix(raw, "0x")
	if b, err := hex.DecodeString(trimmed); err == nil && len(b) == 20 {
		copy(out[:], b)
		return out, true
	}
	return out, false
}

func (s *Server) handleOwnerTokens(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "addr")
	owner, ok := decodeAccount(raw)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}
	tokens := s.svc.TokensByOwner(owner)
	if tokens == nil {
		tokens = []uint64{}
	}
	s.writeJSON(w, http.StatusOK, tokensResponse{Owner: raw, Tokens: tokens})
}
