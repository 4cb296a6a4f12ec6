package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/actions"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/tournament"
)

// getEntity devolve a view especulativa de uma entidade
func (a *API) getEntity(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	p, ok := a.Actions.View(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, EntityResponse{EntityID: string(id), Payload: p, Pending: a.Actions.Pending(id)})
}

func (a *API) getBalance(w http.ResponseWriter, r *http.Request) {
	token, owner := chi.URLParam(r, "token"), chi.URLParam(r, "owner")
	bal, err := a.Actions.Balance(r.Context(), token, owner)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Token: token, Owner: owner, Balance: bal})
}

// getTransaction devolve o estado em memória e, se houver, o histórico persistido
func (a *API) getTransaction(w http.ResponseWriter, r *http.Request) {
	id := model.TxID(chi.URLParam(r, "id"))
	tx, ok := a.Actions.Transaction(id)
	var hist any
	if a.History != nil {
		h, err := a.History.History(r.Context(), id)
		if err == nil && len(h) > 0 {
			hist = h
		}
	}
	if !ok && hist == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	out := map[string]any{"transaction_id": id}
	if ok {
		out["transaction"] = tx
	}
	if hist != nil {
		out["history"] = hist
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) enter(w http.ResponseWriter, r *http.Request) {
	var req EnterRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := a.actionCtx(r)
	defer cancel()
	res, err := a.Actions.EnterTournament(ctx, actions.EnterRequest{
		TournamentID:   chi.URLParam(r, "id"),
		TournamentName: req.TournamentName,
		PlayerName:     req.PlayerName,
		PlayerAddress:  req.PlayerAddress,
		EntryFee:       optional(req.EntryFee),
		Qualification:  optional(req.Qualification),
	})
	a.respond(w, res, err)
}

func (a *API) submitScores(w http.ResponseWriter, r *http.Request) {
	var req SubmitScoresRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := a.actionCtx(r)
	defer cancel()
	res, err := a.Actions.SubmitScores(ctx, chi.URLParam(r, "id"), req.TournamentName, req.GameIDs)
	a.respond(w, res, err)
}

func (a *API) addPrize(w http.ResponseWriter, r *http.Request) {
	var req AddPrizeRequest
	if !decode(w, r, &req) {
		return
	}
	tid := chi.URLParam(r, "id")
	prize, err := req.Prize.prize(tid)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	show := req.ShowNotice == nil || *req.ShowNotice
	ctx, cancel := a.actionCtx(r)
	defer cancel()
	res, err := a.Actions.AddPrize(ctx, tid, req.TournamentName, prize, show)
	a.respond(w, res, err)
}

func (a *API) createTournament(w http.ResponseWriter, r *http.Request) {
	var req CreateTournamentRequest
	if !decode(w, r, &req) {
		return
	}
	prizes := make([]tournament.Prize, 0, len(req.Prizes))
	for _, p := range req.Prizes {
		prize, err := p.prize(req.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		prizes = append(prizes, prize)
	}
	ctx, cancel := a.actionCtx(r)
	defer cancel()
	res, err := a.Actions.CreateTournamentAndAddPrizes(ctx, tournament.Tournament{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Creator:     req.Creator,
		GameAddress: req.GameAddress,
		Schedule:    req.Schedule,
		EntryFee:    optional(req.EntryFee),
	}, prizes)
	a.respond(w, res, err)
}

func (a *API) distribute(w http.ResponseWriter, r *http.Request) {
	var req DistributeRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := a.actionCtx(r)
	defer cancel()
	res, err := a.Actions.DistributePrizes(ctx, chi.URLParam(r, "id"), req.TournamentName, req.PrizeKeys)
	a.respond(w, res, err)
}

func (a *API) endGame(w http.ResponseWriter, r *http.Request) {
	var req EndGameRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := a.actionCtx(r)
	defer cancel()
	res, err := a.Actions.EndGame(ctx, req.GameAddress, req.GameID, req.Score)
	a.respond(w, res, err)
}

func (a *API) tokens(w http.ResponseWriter, r *http.Request) ([]tournament.Token, bool) {
	var req ApproveRequest
	if !decode(w, r, &req) {
		return nil, false
	}
	out := make([]tournament.Token, 0, len(req.Tokens))
	for _, t := range req.Tokens {
		tok, err := t.token()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return nil, false
		}
		out = append(out, tok)
	}
	return out, true
}

func (a *API) approveERC20(w http.ResponseWriter, r *http.Request) {
	toks, ok := a.tokens(w, r)
	if !ok {
		return
	}
	ctx, cancel := a.actionCtx(r)
	defer cancel()
	res, err := a.Actions.ApproveERC20Multiple(ctx, toks)
	a.respond(w, res, err)
}

func (a *API) approveERC721(w http.ResponseWriter, r *http.Request) {
	toks, ok := a.tokens(w, r)
	if !ok {
		return
	}
	ctx, cancel := a.actionCtx(r)
	defer cancel()
	res, err := a.Actions.ApproveERC721Multiple(ctx, toks)
	a.respond(w, res, err)
}

func (a *API) mintERC20(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := a.actionCtx(r)
	defer cancel()
	res, err := a.Actions.MintERC20(ctx, req.Token, req.Recipient, req.Amount)
	a.respond(w, res, err)
}

func (a *API) mintERC721(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := a.actionCtx(r)
	defer cancel()
	res, err := a.Actions.MintERC721(ctx, req.Token, req.Recipient, req.TokenID)
	a.respond(w, res, err)
}
