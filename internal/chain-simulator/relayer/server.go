// Package relayer simula o relayer de submissão e o indexador de leituras da chain:
// POST /execute inclui as calls na ledger e, depois do atraso de bloco, a visão
// indexada e o tópico de atualizações recebem as entidades alteradas.
package relayer

import (
	"context"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/tournament-mirror-poc/internal/chain-simulator/ledger"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/chain/dto"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
)

// ReasonSimulated é o motivo das reversões sorteadas
const ReasonSimulated = "simulated_revert"

type Server struct {
	Ledger  *ledger.Ledger
	Index   *Indexer
	Pub     Publisher // opcional
	Metrics *Metrics  // opcional
	Log     *zap.Logger

	// AcceptRate é a fração de transações incluídas sem reversão sorteada
	AcceptRate float64
	// BlockDelay atrasa a indexação; zero indexa antes de responder
	BlockDelay time.Duration

	accept func() bool
	hash   func() string
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Server) accepted() bool {
	if s.accept != nil {
		return s.accept()
	}
	return rand.Float64() < s.AcceptRate
}

func (s *Server) txHash() string {
	if s.hash != nil {
		return s.hash()
	}
	return "0x" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/execute", s.execute)
	r.Get("/entities/{id}", s.entity)
	r.Get("/tournaments/count", s.tournamentCount)
	return r
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req dto.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.Account == "" || len(req.Calls) == 0 {
		http.Error(w, "account and calls are required", http.StatusBadRequest)
		return
	}

	hash := s.txHash()
	resp := dto.ExecuteResponse{TxHash: hash, Status: string(model.ReceiptAccepted)}
	if !s.accepted() {
		resp.Status = string(model.ReceiptReverted)
		resp.Reason = ReasonSimulated
	} else if ents, err := s.Ledger.Execute(req.Account, req.Calls); err != nil {
		resp.Status = string(model.ReceiptReverted)
		resp.Reason = err.Error()
	} else {
		s.schedule(hash, ents)
	}
	s.Metrics.execution(resp.Status)
	s.logger().Info("transaction included",
		zap.String("tx_hash", hash),
		zap.String("account", req.Account),
		zap.Int("calls", len(req.Calls)),
		zap.String("status", resp.Status),
		zap.String("reason", resp.Reason),
	)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// schedule indexa e publica as entidades depois do atraso de bloco
func (s *Server) schedule(hash string, ents []ledger.Entity) {
	if s.BlockDelay <= 0 {
		s.index(hash, ents)
		return
	}
	time.AfterFunc(s.BlockDelay, func() { s.index(hash, ents) })
}

func (s *Server) index(hash string, ents []ledger.Entity) {
	s.Index.Put(ents)
	if s.Pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Pub.Publish(ctx, hash, ents); err != nil {
		s.Metrics.failure()
		s.logger().Warn("publish entity updates failed", zap.String("tx_hash", hash), zap.Error(err))
		return
	}
	s.Metrics.published(len(ents))
}

func (s *Server) entity(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "bad entity id", http.StatusBadRequest)
		return
	}
	e, ok := s.Index.Get(model.ID(id))
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(dto.EntityResponse{
		EntityID: string(e.ID),
		Payload:  e.Payload,
		Version:  uint64(e.Version),
	})
}

// tournamentCount informa quantos torneios existem; o próximo create recebe count+1
func (s *Server) tournamentCount(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int64{"count": s.Ledger.Tournaments()})
}
