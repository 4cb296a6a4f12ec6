// Package httpapi expõe a fachada de ações e as views do espelho em REST.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/actions"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/overlay"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/repo"
)

// History lê o log persistido de transições (implementado por repo.Persister)
type History interface {
	History(ctx context.Context, tx model.TxID) ([]repo.TxLogEntry, error)
}

// API expõe os endpoints REST do mirror-service
type API struct {
	Actions *actions.Service
	History History          // opcional
	WS      http.HandlerFunc // opcional: /ws
	Log     *zap.Logger
	// limite de espera de cada ação (o núcleo reverte no timeout)
	ActionTimeout time.Duration
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.requestLog)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/entities/{id}", a.getEntity)
		r.Get("/balances/{token}/{owner}", a.getBalance)
		r.Get("/transactions/{id}", a.getTransaction)

		r.Post("/tournaments", a.createTournament)
		r.Post("/tournaments/{id}/enter", a.enter)
		r.Post("/tournaments/{id}/scores", a.submitScores)
		r.Post("/tournaments/{id}/prizes", a.addPrize)
		r.Post("/tournaments/{id}/distribute", a.distribute)
		r.Post("/games/end", a.endGame)
		r.Post("/approvals/erc20", a.approveERC20)
		r.Post("/approvals/erc721", a.approveERC721)
		r.Post("/mint/erc20", a.mintERC20)
		r.Post("/mint/erc721", a.mintERC721)
	})
	if a.WS != nil {
		r.Get("/ws", a.WS)
	}
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor traduz os erros da fachada
func statusFor(err error) int {
	switch {
	case errors.Is(err, actions.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, overlay.ErrDuplicateTransaction):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, actions.ErrSubmissionFailed):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return false
	}
	return true
}

// actionCtx limita a espera da ação
func (a *API) actionCtx(r *http.Request) (context.Context, context.CancelFunc) {
	d := a.ActionTimeout
	if d <= 0 {
		d = 60 * time.Second
	}
	return context.WithTimeout(r.Context(), d)
}

func (a *API) respond(w http.ResponseWriter, res actions.Result, err error) {
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"error": err.Error(), "transaction_id": res.Tx})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if a.Log != nil {
			a.Log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}
	})
}
