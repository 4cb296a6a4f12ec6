package tournament

import (
	"strconv"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
)

// chaves dos payloads espelhados
const (
	KeyID               = "id"
	KeyName             = "name"
	KeyDescription      = "description"
	KeyCreator          = "creator"
	KeyGameAddress      = "game_address"
	KeySchedule         = "schedule"
	KeyEntryFee         = "entry_fee"
	KeyEntryCount       = "entry_count"
	KeySubmittedGameIDs = "submitted_game_ids"
	KeyPrizes           = "prizes"
	KeyClaimedPrizes    = "claimed_prizes"

	KeyTournamentID   = "tournament_id"
	KeyPlayer         = "player"
	KeyToken          = "token"
	KeyOwner          = "owner"
	KeySpender        = "spender"
	KeyAmount         = "amount"
	KeyTokenIDs       = "token_ids"
	KeyGameID         = "game_id"
	KeyScore          = "score"
	KeyEnded          = "ended"
	KeyTokenAddress   = "token_address"
	KeyTokenType      = "token_type"
	KeyValue          = "value"
	KeyPayoutPosition = "payout_position"
)

// TournamentPayload monta o payload de um torneio recém-criado
func TournamentPayload(t Tournament) model.Payload {
	p := model.Payload{
		KeyID:          t.ID,
		KeyName:        t.Name,
		KeyDescription: t.Description,
		KeyCreator:     t.Creator,
		KeyGameAddress: t.GameAddress,
		KeySchedule: map[string]any{
			"start":          strconv.FormatInt(t.Schedule.Start, 10),
			"end":            strconv.FormatInt(t.Schedule.End, 10),
			"submission_end": strconv.FormatInt(t.Schedule.SubmissionEnd, 10),
		},
		KeyEntryCount:       int64(0),
		KeySubmittedGameIDs: []any{},
		KeyPrizes:           []any{},
		KeyClaimedPrizes:    []any{},
	}
	if fee, ok := t.EntryFee.Get(); ok {
		p[KeyEntryFee] = map[string]any{
			KeyTokenAddress: fee.TokenAddress,
			KeyAmount:       fee.Amount.String(),
		}
	}
	return p
}

// PrizePayload é a forma de um prêmio dentro da lista "prizes"
func PrizePayload(p Prize) map[string]any {
	return map[string]any{
		KeyTournamentID:   p.TournamentID,
		KeyTokenAddress:   p.TokenAddress,
		KeyTokenType:      p.Token.Variant(),
		KeyValue:          ApproveValue(p.Token),
		KeyPayoutPosition: int64(p.PayoutPosition),
	}
}

// DecodeTokenType lê a variante de token de um objeto de prêmio
func DecodeTokenType(p model.Payload) (TokenType, bool) {
	switch p.String(KeyTokenType) {
	case "erc20":
		return ERC20{Amount: p.Decimal(KeyValue)}, true
	case "erc721":
		return ERC721{TokenID: p.String(KeyValue)}, true
	}
	return nil, false
}

func samePrize(remote model.Payload, p Prize) bool {
	if NormalizeAddr(remote.String(KeyTokenAddress)) != NormalizeAddr(p.TokenAddress) ||
		remote.Int(KeyPayoutPosition) != int64(p.PayoutPosition) {
		return false
	}
	t, ok := DecodeTokenType(remote)
	if !ok {
		return false
	}
	switch want := p.Token.(type) {
	case ERC20:
		got, ok := t.(ERC20)
		return ok && got.Amount.Equal(want.Amount)
	case ERC721:
		got, ok := t.(ERC721)
		return ok && got.TokenID == want.TokenID
	}
	return false
}

// union acrescenta os itens ainda ausentes preservando a ordem
func union(existing []string, items []string) []any {
	seen := make(map[string]struct{}, len(existing)+len(items))
	out := make([]any, 0, len(existing)+len(items))
	for _, s := range append(existing, items...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func containsAll(have []string, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, s := range have {
		set[s] = struct{}{}
	}
	for _, s := range want {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}

func appendMap(list []model.Payload, m map[string]any) []any {
	out := make([]any, 0, len(list)+1)
	for _, p := range list {
		out = append(out, map[string]any(p))
	}
	return append(out, m)
}

// SumApprovals agrupa os approves ERC20 por endereço somando os montantes,
// na ordem em que cada endereço aparece primeiro
func SumApprovals(tokens []Token) []Token {
	idx := make(map[string]int)
	var out []Token
	for _, t := range tokens {
		erc20, ok := t.Type.(ERC20)
		if !ok {
			continue
		}
		key := NormalizeAddr(t.Address)
		if i, seen := idx[key]; seen {
			prev := out[i].Type.(ERC20)
			out[i].Type = ERC20{Amount: prev.Amount.Add(erc20.Amount)}
			continue
		}
		idx[key] = len(out)
		out = append(out, Token{Address: t.Address, Type: ERC20{Amount: erc20.Amount}})
	}
	return out
}
