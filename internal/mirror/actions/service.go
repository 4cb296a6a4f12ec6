// Package actions é a fachada de operações do cliente de torneios. Toda ação segue
// o mesmo roteiro: patch otimista, submissão, espera do desfecho, aviso, limpeza.
package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/notify"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/overlay"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/telemetry"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/tracker"
)

var (
	ErrSubmissionFailed = errors.New("submission failed")
	ErrReverted         = errors.New("transaction reverted")
	ErrInvalidRequest   = errors.New("invalid request")
)

// Submitter assina e envia as calls (carteira/relayer)
type Submitter interface {
	Submit(ctx context.Context, calls []model.Call) (model.Receipt, error)
}

// Refresher faz a leitura direta pós-submissão (implementado pelo Reconciler)
type Refresher interface {
	Refresh(ctx context.Context, ids ...model.ID) error
}

// Config identifica os contratos e a conta da sessão
type Config struct {
	TournamentAddress string
	Account           string
}

// Result é o retorno de uma ação concluída
type Result struct {
	Tx      model.TxID    `json:"transaction_id"`
	Receipt model.Receipt `json:"receipt"`
}

type Service struct {
	tracker   *tracker.Tracker
	overlay   *overlay.Overlay
	submitter Submitter
	refresher Refresher
	sink      notify.Sink
	metrics   *telemetry.Metrics
	log       *zap.Logger
	newID     func() model.TxID
	now       func() time.Time
	cfg       Config
}

type Option func(*Service)

func WithSink(s notify.Sink) Option { return func(svc *Service) { svc.sink = s } }

func WithRefresher(r Refresher) Option { return func(svc *Service) { svc.refresher = r } }

func WithMetrics(m *telemetry.Metrics) Option { return func(svc *Service) { svc.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(svc *Service) { svc.log = l } }

// WithIDGenerator substitui o gerador de TxID (uuid v4 por padrão)
func WithIDGenerator(fn func() model.TxID) Option { return func(svc *Service) { svc.newID = fn } }

func New(t *tracker.Tracker, o *overlay.Overlay, sub Submitter, cfg Config, opts ...Option) *Service {
	s := &Service{
		tracker:   t,
		overlay:   o,
		submitter: sub,
		sink:      notify.Nop,
		log:       zap.NewNop(),
		newID:     func() model.TxID { return model.TxID(uuid.NewString()) },
		now:       time.Now,
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// request descreve uma ação pronta para o roteiro comum
type request struct {
	action  string
	muts    []overlay.Mutation
	calls   []model.Call
	success *notify.Notice // nil: sem aviso de sucesso
	failure string
	refresh []model.ID
}

// execute é o roteiro de toda ação. A limpeza (Confirm) roda em qualquer saída;
// no erro, o Revert acontece antes de o erro ficar visível ao chamador.
func (s *Service) execute(ctx context.Context, req request) (res Result, err error) {
	id := s.newID()
	h, err := s.tracker.Begin(id, req.muts...)
	if err != nil {
		return Result{}, err
	}
	defer h.Confirm()
	res.Tx = id

	calls := req.calls
	go func() {
		// a submissão não é cancelável: a ledger pode aceitar mesmo após o chamador desistir
		rec, err := s.submitter.Submit(context.WithoutCancel(ctx), calls)
		if err == nil && rec.Status == model.ReceiptReverted {
			err = fmt.Errorf("%w: %s", ErrReverted, rec.Reason)
		}
		h.Settle(rec, err)
	}()

	rec, err := h.Wait(ctx)
	if err != nil {
		h.Revert()
		// o eco remoto pode ter confirmado a transação antes do erro chegar;
		// o aviso segue o estado final do tracker
		if tx, ok := s.tracker.Get(id); !ok || tx.State != tracker.StateConfirmed {
			s.metrics.Submission(req.action, false)
			s.log.Warn("action failed", zap.String("action", req.action), zap.String("tx", string(id)), zap.Error(err))
			s.sink.Notify(ctx, notify.Notice{
				Kind:        notify.KindFailure,
				Action:      req.action,
				Title:       req.failure,
				Description: err.Error(),
				Tx:          id,
				Receipt:     rec,
				Err:         err,
				At:          s.now().UTC(),
			})
			return res, fmt.Errorf("%w: %s: %w", ErrSubmissionFailed, req.action, err)
		}
		s.log.Warn("submission error after remote confirmation", zap.String("action", req.action), zap.String("tx", string(id)), zap.Error(err))
	}

	res.Receipt = rec
	s.metrics.Submission(req.action, true)
	s.log.Info("action submitted", zap.String("action", req.action), zap.String("tx", string(id)), zap.String("tx_hash", rec.TxHash))
	if req.success != nil {
		n := *req.success
		n.Kind = notify.KindSuccess
		n.Action = req.action
		n.Tx = id
		n.Receipt = rec
		n.At = s.now().UTC()
		s.sink.Notify(ctx, n)
	}

	// commit antes da leitura direta: o eco lido já encontra a transação encerrada
	h.Confirm()
	if s.refresher != nil && len(req.refresh) > 0 {
		if err := s.refresher.Refresh(context.WithoutCancel(ctx), req.refresh...); err != nil {
			s.log.Warn("post-submission refresh failed", zap.String("tx", string(id)), zap.Error(err))
		}
	}
	return res, nil
}

// View devolve a view especulativa de qualquer entidade
func (s *Service) View(id model.ID) (model.Payload, bool) {
	return s.overlay.View(id)
}

// Pending conta as mutações otimistas ainda aplicadas sobre a entidade
func (s *Service) Pending(id model.ID) int {
	return s.overlay.Pending(id)
}

// Transaction devolve o estado de uma transação rastreada
func (s *Service) Transaction(id model.TxID) (tracker.Transaction, bool) {
	return s.tracker.Get(id)
}

func entities(muts []overlay.Mutation) []model.ID {
	seen := make(map[model.ID]struct{}, len(muts))
	out := make([]model.ID, 0, len(muts))
	for _, m := range muts {
		if _, ok := seen[m.Entity]; ok {
			continue
		}
		seen[m.Entity] = struct{}{}
		out = append(out, m.Entity)
	}
	return out
}
