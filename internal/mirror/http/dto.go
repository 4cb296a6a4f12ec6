package httpapi

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/tournament"
)

// TokenDTO representa um token no formato JSON da API.
// Type: "erc20" (usa Amount) | "erc721" (usa TokenID)
type TokenDTO struct {
	Address string          `json:"address"`
	Type    string          `json:"type"`
	Amount  decimal.Decimal `json:"amount"`
	TokenID string          `json:"token_id,omitempty"`
}

func (t TokenDTO) tokenType() (tournament.TokenType, error) {
	switch t.Type {
	case "erc20":
		return tournament.ERC20{Amount: t.Amount}, nil
	case "erc721":
		if t.TokenID == "" {
			return nil, fmt.Errorf("token_id required for erc721")
		}
		return tournament.ERC721{TokenID: t.TokenID}, nil
	default:
		return nil, fmt.Errorf("unknown token type %q", t.Type)
	}
}

func (t TokenDTO) token() (tournament.Token, error) {
	tt, err := t.tokenType()
	if err != nil {
		return tournament.Token{}, err
	}
	return tournament.Token{Address: t.Address, Type: tt}, nil
}

type PrizeDTO struct {
	Token          TokenDTO `json:"token"`
	PayoutPosition int      `json:"payout_position"`
}

func (p PrizeDTO) prize(tournamentID string) (tournament.Prize, error) {
	tt, err := p.Token.tokenType()
	if err != nil {
		return tournament.Prize{}, err
	}
	return tournament.Prize{
		TournamentID:   tournamentID,
		TokenAddress:   p.Token.Address,
		Token:          tt,
		PayoutPosition: p.PayoutPosition,
	}, nil
}

type EnterRequest struct {
	TournamentName string                         `json:"tournament_name"`
	PlayerName     string                         `json:"player_name"`
	PlayerAddress  string                         `json:"player_address"`
	EntryFee       *tournament.EntryFee           `json:"entry_fee,omitempty"`
	Qualification  *tournament.QualificationProof `json:"qualification,omitempty"`
}

type SubmitScoresRequest struct {
	TournamentName string   `json:"tournament_name"`
	GameIDs        []string `json:"game_ids"`
}

type AddPrizeRequest struct {
	TournamentName string   `json:"tournament_name"`
	Prize          PrizeDTO `json:"prize"`
	ShowNotice     *bool    `json:"show_notice,omitempty"`
}

type CreateTournamentRequest struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Creator     string               `json:"creator,omitempty"`
	GameAddress string               `json:"game_address"`
	Schedule    tournament.Schedule  `json:"schedule"`
	EntryFee    *tournament.EntryFee `json:"entry_fee,omitempty"`
	Prizes      []PrizeDTO           `json:"prizes"`
}

type DistributeRequest struct {
	TournamentName string   `json:"tournament_name"`
	PrizeKeys      []string `json:"prize_keys"`
}

type EndGameRequest struct {
	GameAddress string `json:"game_address"`
	GameID      string `json:"game_id"`
	Score       int64  `json:"score"`
}

type ApproveRequest struct {
	Tokens []TokenDTO `json:"tokens"`
}

type MintRequest struct {
	Token     string          `json:"token"`
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	TokenID   string          `json:"token_id,omitempty"`
}

type EntityResponse struct {
	EntityID string         `json:"entity_id"`
	Payload  map[string]any `json:"payload"`
	Pending  int            `json:"pending"`
}

type BalanceResponse struct {
	Token   string          `json:"token"`
	Owner   string          `json:"owner"`
	Balance decimal.Decimal `json:"balance"`
}

func optional[T any](p *T) tournament.Option[T] {
	if p == nil {
		return tournament.None[T]()
	}
	return tournament.Some(*p)
}
