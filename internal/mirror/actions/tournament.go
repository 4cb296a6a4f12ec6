package actions

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/notify"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/overlay"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/tournament"
)

// EnterRequest descreve a entrada de um jogador em um torneio
type EnterRequest struct {
	TournamentID   string
	TournamentName string
	PlayerName     string
	PlayerAddress  string
	EntryFee       tournament.Option[tournament.EntryFee]
	Qualification  tournament.Option[tournament.QualificationProof]
}

// EnterTournament aprova a taxa de entrada (quando existe) e entra no torneio
func (s *Service) EnterTournament(ctx context.Context, r EnterRequest) (Result, error) {
	if r.TournamentID == "" || r.PlayerAddress == "" {
		return Result{}, fmt.Errorf("%w: tournament id and player address are required", ErrInvalidRequest)
	}

	tid := tournament.TournamentID(r.TournamentID)
	eid := tournament.EntriesID(r.TournamentID, s.cfg.Account)
	muts := []overlay.Mutation{
		{Entity: tid, Patch: tournament.EnterPatch()},
		{Entity: eid, Patch: tournament.PlayerEntriesPatch(r.TournamentID, s.cfg.Account)},
	}

	var calls []model.Call
	if fee, ok := r.EntryFee.Get(); ok {
		calls = append(calls, tournament.ApproveCall(fee.TokenAddress, s.cfg.TournamentAddress, fee.Amount.String()))
	}
	calls = append(calls, tournament.EnterTournamentCall(s.cfg.TournamentAddress, r.TournamentID, r.PlayerName, r.PlayerAddress, r.Qualification))

	return s.execute(ctx, request{
		action: tournament.KindEnter,
		muts:   muts,
		calls:  calls,
		success: &notify.Notice{
			Title:       "Entered Tournament!",
			Description: fmt.Sprintf("Entered tournament %s", r.TournamentName),
		},
		failure: "Failed to enter tournament",
		refresh: entities(muts),
	})
}

func (s *Service) SubmitScores(ctx context.Context, tournamentID, tournamentName string, gameIDs []string) (Result, error) {
	if tournamentID == "" || len(gameIDs) == 0 {
		return Result{}, fmt.Errorf("%w: tournament id and game ids are required", ErrInvalidRequest)
	}
	tid := tournament.TournamentID(tournamentID)
	return s.execute(ctx, request{
		action: tournament.KindSubmitScores,
		muts:   []overlay.Mutation{{Entity: tid, Patch: tournament.SubmitScoresPatch(gameIDs)}},
		calls:  []model.Call{tournament.SubmitScoresCall(s.cfg.TournamentAddress, tournamentID, gameIDs)},
		success: &notify.Notice{
			Title:       "Submitted Scores!",
			Description: fmt.Sprintf("Submitted scores for tournament %s", tournamentName),
		},
		failure: "Failed to submit scores",
		refresh: []model.ID{tid},
	})
}

// AddPrize aprova o token do prêmio e o adiciona ao torneio.
// showNotice=false suprime o aviso de sucesso (usado quando vários prêmios são adicionados em sequência).
func (s *Service) AddPrize(ctx context.Context, tournamentID, tournamentName string, prize tournament.Prize, showNotice bool) (Result, error) {
	if tournamentID == "" || prize.TokenAddress == "" || prize.Token == nil {
		return Result{}, fmt.Errorf("%w: tournament id and prize token are required", ErrInvalidRequest)
	}
	prize.TournamentID = tournamentID

	tid := tournament.TournamentID(tournamentID)
	aid := tournament.AllowanceID(prize.TokenAddress, s.cfg.Account, s.cfg.TournamentAddress)
	muts := []overlay.Mutation{
		{Entity: tid, Patch: tournament.AddPrizePatch(prize)},
		{Entity: aid, Patch: tournament.AllowancePatch(prize.TokenAddress, s.cfg.Account, s.cfg.TournamentAddress, prize.Token)},
	}

	var success *notify.Notice
	if showNotice {
		success = &notify.Notice{
			Title:       "Added Prize!",
			Description: fmt.Sprintf("Added prize for tournament %s", tournamentName),
		}
	}
	return s.execute(ctx, request{
		action: tournament.KindAddPrize,
		muts:   muts,
		calls: []model.Call{
			tournament.ApproveCall(prize.TokenAddress, s.cfg.TournamentAddress, tournament.ApproveValue(prize.Token)),
			tournament.AddPrizeCall(s.cfg.TournamentAddress, prize),
		},
		success: success,
		failure: "Failed to add prize",
		refresh: []model.ID{tid},
	})
}

// CreateTournamentAndAddPrizes cria o torneio e adiciona N prêmios em uma única transação lógica
// (1 + 2N calls, um único TxID).
func (s *Service) CreateTournamentAndAddPrizes(ctx context.Context, tour tournament.Tournament, prizes []tournament.Prize) (Result, error) {
	if tour.ID == "" || tour.Name == "" {
		return Result{}, fmt.Errorf("%w: tournament id and name are required", ErrInvalidRequest)
	}
	if tour.Creator == "" {
		tour.Creator = s.cfg.Account
	}

	tid := tournament.TournamentID(tour.ID)
	muts := []overlay.Mutation{{Entity: tid, Patch: tournament.CreatePatch(tour, prizes)}}
	calls := []model.Call{tournament.CreateTournamentCall(s.cfg.TournamentAddress, tour)}
	for _, p := range prizes {
		if p.TokenAddress == "" || p.Token == nil {
			return Result{}, fmt.Errorf("%w: prize token is required", ErrInvalidRequest)
		}
		p.TournamentID = tour.ID
		muts = append(muts, overlay.Mutation{
			Entity: tournament.AllowanceID(p.TokenAddress, s.cfg.Account, s.cfg.TournamentAddress),
			Patch:  tournament.AllowancePatch(p.TokenAddress, s.cfg.Account, s.cfg.TournamentAddress, p.Token),
		})
		calls = append(calls,
			tournament.ApproveCall(p.TokenAddress, s.cfg.TournamentAddress, tournament.ApproveValue(p.Token)),
			tournament.AddPrizeCall(s.cfg.TournamentAddress, p),
		)
	}

	return s.execute(ctx, request{
		action: tournament.KindCreate,
		muts:   muts,
		calls:  calls,
		success: &notify.Notice{
			Title:       "Created Tournament!",
			Description: fmt.Sprintf("Created tournament %s", tour.Name),
		},
		failure: "Failed to create tournament",
		refresh: []model.ID{tid},
	})
}

func (s *Service) DistributePrizes(ctx context.Context, tournamentID, tournamentName string, prizeKeys []string) (Result, error) {
	if tournamentID == "" || len(prizeKeys) == 0 {
		return Result{}, fmt.Errorf("%w: tournament id and prize keys are required", ErrInvalidRequest)
	}
	tid := tournament.TournamentID(tournamentID)
	return s.execute(ctx, request{
		action: tournament.KindDistribute,
		muts:   []overlay.Mutation{{Entity: tid, Patch: tournament.DistributePatch(prizeKeys)}},
		calls:  []model.Call{tournament.DistributePrizesCall(s.cfg.TournamentAddress, tournamentID, prizeKeys)},
		success: &notify.Notice{
			Title:       "Distributed Prizes!",
			Description: fmt.Sprintf("Distributed prizes for tournament %s", tournamentName),
		},
		failure: "Failed to distribute prizes",
		refresh: []model.ID{tid},
	})
}

func (s *Service) EndGame(ctx context.Context, gameAddress, gameID string, score int64) (Result, error) {
	if gameAddress == "" || gameID == "" {
		return Result{}, fmt.Errorf("%w: game address and id are required", ErrInvalidRequest)
	}
	gid := tournament.GameID(gameAddress, gameID)
	return s.execute(ctx, request{
		action: tournament.KindEndGame,
		muts:   []overlay.Mutation{{Entity: gid, Patch: tournament.EndGamePatch(gameID, score)}},
		calls:  []model.Call{tournament.EndGameCall(gameAddress, gameID, score)},
		success: &notify.Notice{
			Title:       "Game Ended!",
			Description: fmt.Sprintf("Game %s ended with score %d", gameID, score),
		},
		failure: "Failed to end game",
		refresh: []model.ID{gid},
	})
}

// ApproveERC20Multiple soma os montantes por endereço de token e emite um approve por endereço
func (s *Service) ApproveERC20Multiple(ctx context.Context, tokens []tournament.Token) (Result, error) {
	summed := tournament.SumApprovals(tokens)
	if len(summed) == 0 {
		return Result{}, fmt.Errorf("%w: no erc20 tokens to approve", ErrInvalidRequest)
	}
	muts := make([]overlay.Mutation, 0, len(summed))
	calls := make([]model.Call, 0, len(summed))
	for _, tok := range summed {
		muts = append(muts, overlay.Mutation{
			Entity: tournament.AllowanceID(tok.Address, s.cfg.Account, s.cfg.TournamentAddress),
			Patch:  tournament.AllowancePatch(tok.Address, s.cfg.Account, s.cfg.TournamentAddress, tok.Type),
		})
		calls = append(calls, tournament.ApproveCall(tok.Address, s.cfg.TournamentAddress, tournament.ApproveValue(tok.Type)))
	}
	return s.execute(ctx, request{
		action: "approve_erc20",
		muts:   muts,
		calls:  calls,
		success: &notify.Notice{
			Title:       "Approved Tokens!",
			Description: fmt.Sprintf("Approved %d ERC20 tokens", len(summed)),
		},
		failure: "Failed to approve tokens",
	})
}

// ApproveERC721Multiple emite um approve por token id
func (s *Service) ApproveERC721Multiple(ctx context.Context, tokens []tournament.Token) (Result, error) {
	var muts []overlay.Mutation
	var calls []model.Call
	for _, tok := range tokens {
		nft, ok := tok.Type.(tournament.ERC721)
		if !ok {
			continue
		}
		muts = append(muts, overlay.Mutation{
			Entity: tournament.AllowanceID(tok.Address, s.cfg.Account, s.cfg.TournamentAddress),
			Patch:  tournament.AllowancePatch(tok.Address, s.cfg.Account, s.cfg.TournamentAddress, nft),
		})
		calls = append(calls, tournament.ApproveCall(tok.Address, s.cfg.TournamentAddress, nft.TokenID))
	}
	if len(calls) == 0 {
		return Result{}, fmt.Errorf("%w: no erc721 tokens to approve", ErrInvalidRequest)
	}
	return s.execute(ctx, request{
		action: "approve_erc721",
		muts:   muts,
		calls:  calls,
		success: &notify.Notice{
			Title:       "Approved Tokens!",
			Description: fmt.Sprintf("Approved %d ERC721 tokens", len(calls)),
		},
		failure: "Failed to approve tokens",
	})
}

func (s *Service) MintERC20(ctx context.Context, token, recipient string, amount decimal.Decimal) (Result, error) {
	if token == "" || recipient == "" || !amount.IsPositive() {
		return Result{}, fmt.Errorf("%w: token, recipient and a positive amount are required", ErrInvalidRequest)
	}
	bid := tournament.BalanceID(token, recipient)
	return s.execute(ctx, request{
		action: tournament.KindMintERC20,
		muts:   []overlay.Mutation{{Entity: bid, Patch: tournament.MintERC20Patch(token, recipient, amount)}},
		calls:  []model.Call{tournament.MintCall(token, recipient, amount.String())},
		success: &notify.Notice{
			Title:       "Minted Tokens!",
			Description: fmt.Sprintf("Minted %s tokens", amount.String()),
		},
		failure: "Failed to mint tokens",
		refresh: []model.ID{bid},
	})
}

func (s *Service) MintERC721(ctx context.Context, token, recipient, tokenID string) (Result, error) {
	if token == "" || recipient == "" || tokenID == "" {
		return Result{}, fmt.Errorf("%w: token, recipient and token id are required", ErrInvalidRequest)
	}
	bid := tournament.BalanceID(token, recipient)
	return s.execute(ctx, request{
		action: tournament.KindMintERC721,
		muts:   []overlay.Mutation{{Entity: bid, Patch: tournament.MintERC721Patch(token, recipient, tokenID)}},
		calls:  []model.Call{tournament.MintCall(token, recipient, tokenID)},
		success: &notify.Notice{
			Title:       "Minted NFT!",
			Description: fmt.Sprintf("Minted token %s", tokenID),
		},
		failure: "Failed to mint NFT",
		refresh: []model.ID{bid},
	})
}

// Balance lê o saldo especulativo. Sem dado local, tenta uma leitura direta antes.
func (s *Service) Balance(ctx context.Context, token, owner string) (decimal.Decimal, error) {
	bid := tournament.BalanceID(token, owner)
	p, ok := s.overlay.View(bid)
	if !ok && s.refresher != nil {
		if err := s.refresher.Refresh(ctx, bid); err != nil {
			return decimal.Zero, fmt.Errorf("refresh balance: %w", err)
		}
		p, _ = s.overlay.View(bid)
	}
	return p.Decimal(tournament.KeyAmount), nil
}
