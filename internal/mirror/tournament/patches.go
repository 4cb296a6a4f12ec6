package tournament

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/overlay"
)

// Tipos de patch, usados em logs e métricas
const (
	KindEnter         = "enter_tournament"
	KindPlayerEntries = "player_entries"
	KindSubmitScores  = "submit_scores"
	KindAddPrize      = "add_prize"
	KindAllowance     = "allowance"
	KindCreate        = "create_tournament"
	KindDistribute    = "distribute_prizes"
	KindEndGame       = "end_game"
	KindMintERC20     = "mint_erc20"
	KindMintERC721    = "mint_erc721"
)

// EnterPatch soma uma entrada no torneio. A contagem esperada sai da view anterior
// no fold, então entradas concorrentes esperam contagens distintas.
func EnterPatch() overlay.Patch {
	return overlay.Patch{
		Kind:   KindEnter,
		Policy: overlay.PolicyStrict,
		Apply: func(prev model.Payload) model.Payload {
			return prev.With(KeyEntryCount, prev.Int(KeyEntryCount)+1)
		},
		Observed: countedOnce,
	}
}

// PlayerEntriesPatch soma uma entrada no contador do jogador, criando-o se preciso
func PlayerEntriesPatch(tournamentID, player string) overlay.Patch {
	return overlay.Patch{
		Kind:   KindPlayerEntries,
		Policy: overlay.PolicyStrict,
		Apply: func(prev model.Payload) model.Payload {
			if prev == nil {
				prev = model.Payload{KeyTournamentID: tournamentID, KeyPlayer: player}
			}
			return prev.With(KeyEntryCount, prev.Int(KeyEntryCount)+1)
		},
		Observed: countedOnce,
	}
}

func countedOnce(before, remote model.Payload) bool {
	return remote != nil && remote.Int(KeyEntryCount) >= before.Int(KeyEntryCount)+1
}

func SubmitScoresPatch(gameIDs []string) overlay.Patch {
	ids := append([]string(nil), gameIDs...)
	return overlay.Patch{
		Kind:   KindSubmitScores,
		Policy: overlay.PolicyStrict,
		Apply: func(prev model.Payload) model.Payload {
			return prev.With(KeySubmittedGameIDs, union(prev.Strings(KeySubmittedGameIDs), ids))
		},
		Superseded: func(remote model.Payload) bool {
			return remote != nil && containsAll(remote.Strings(KeySubmittedGameIDs), ids)
		},
	}
}

// AddPrizePatch acrescenta o prêmio ao torneio. Prêmios idênticos em paralelo
// são aposentados pelo primeiro eco que contiver um deles.
func AddPrizePatch(p Prize) overlay.Patch {
	return overlay.Patch{
		Kind:   KindAddPrize,
		Policy: overlay.PolicyStrict,
		Apply: func(prev model.Payload) model.Payload {
			return prev.With(KeyPrizes, appendMap(prev.Maps(KeyPrizes), PrizePayload(p)))
		},
		Superseded: func(remote model.Payload) bool {
			for _, rp := range remote.Maps(KeyPrizes) {
				if samePrize(rp, p) {
					return true
				}
			}
			return false
		},
	}
}

// AllowancePatch registra o approve: ERC20 substitui o montante, ERC721 acrescenta o token id
func AllowancePatch(token, owner, spender string, t TokenType) overlay.Patch {
	return overlay.Patch{
		Kind:   KindAllowance,
		Policy: overlay.PolicyEager,
		Apply: func(prev model.Payload) model.Payload {
			if prev == nil {
				prev = model.Payload{KeyToken: token, KeyOwner: owner, KeySpender: spender}
			}
			switch v := t.(type) {
			case ERC20:
				return prev.With(KeyAmount, v.Amount.String())
			case ERC721:
				return prev.With(KeyTokenIDs, union(prev.Strings(KeyTokenIDs), []string{v.TokenID}))
			}
			return prev.Clone()
		},
		Superseded: func(remote model.Payload) bool {
			if remote == nil {
				return false
			}
			switch v := t.(type) {
			case ERC20:
				return remote.Decimal(KeyAmount).Equal(v.Amount)
			case ERC721:
				return containsAll(remote.Strings(KeyTokenIDs), []string{v.TokenID})
			}
			return false
		},
	}
}

// CreatePatch constrói o torneio novo já com os prêmios. Se a entidade já existe
// (eco chegou antes), o payload remoto prevalece.
func CreatePatch(t Tournament, prizes []Prize) overlay.Patch {
	return overlay.Patch{
		Kind:   KindCreate,
		Policy: overlay.PolicyEager,
		Apply: func(prev model.Payload) model.Payload {
			if prev != nil {
				return prev.Clone()
			}
			p := TournamentPayload(t)
			list := make([]any, 0, len(prizes))
			for _, pr := range prizes {
				pr.TournamentID = t.ID
				list = append(list, PrizePayload(pr))
			}
			p[KeyPrizes] = list
			return p
		},
		Superseded: func(remote model.Payload) bool { return remote != nil },
	}
}

func DistributePatch(prizeKeys []string) overlay.Patch {
	keys := append([]string(nil), prizeKeys...)
	return overlay.Patch{
		Kind:   KindDistribute,
		Policy: overlay.PolicyStrict,
		Apply: func(prev model.Payload) model.Payload {
			return prev.With(KeyClaimedPrizes, union(prev.Strings(KeyClaimedPrizes), keys))
		},
		Superseded: func(remote model.Payload) bool {
			return remote != nil && containsAll(remote.Strings(KeyClaimedPrizes), keys)
		},
	}
}

func EndGamePatch(gameID string, score int64) overlay.Patch {
	return overlay.Patch{
		Kind:   KindEndGame,
		Policy: overlay.PolicyStrict,
		Apply: func(prev model.Payload) model.Payload {
			if prev == nil {
				prev = model.Payload{KeyGameID: gameID}
			}
			return prev.With(KeyScore, score).With(KeyEnded, true)
		},
		Superseded: func(remote model.Payload) bool {
			return remote.Bool(KeyEnded) && remote.Int(KeyScore) == score
		},
	}
}

// MintERC20Patch soma o montante ao saldo. Aposentado quando o saldo remoto
// alcança o saldo anterior da view mais o montante.
func MintERC20Patch(token, owner string, amount decimal.Decimal) overlay.Patch {
	return overlay.Patch{
		Kind:   KindMintERC20,
		Policy: overlay.PolicyStrict,
		Apply: func(prev model.Payload) model.Payload {
			if prev == nil {
				prev = model.Payload{KeyToken: token, KeyOwner: owner}
			}
			return prev.With(KeyAmount, prev.Decimal(KeyAmount).Add(amount).String())
		},
		Observed: func(before, remote model.Payload) bool {
			return remote != nil && remote.Decimal(KeyAmount).GreaterThanOrEqual(before.Decimal(KeyAmount).Add(amount))
		},
	}
}

func MintERC721Patch(token, owner, tokenID string) overlay.Patch {
	return overlay.Patch{
		Kind:   KindMintERC721,
		Policy: overlay.PolicyStrict,
		Apply: func(prev model.Payload) model.Payload {
			if prev == nil {
				prev = model.Payload{KeyToken: token, KeyOwner: owner}
			}
			next := prev.With(KeyAmount, prev.Decimal(KeyAmount).Add(decimal.NewFromInt(1)).String())
			return next.With(KeyTokenIDs, union(prev.Strings(KeyTokenIDs), []string{tokenID}))
		},
		Superseded: func(remote model.Payload) bool {
			return containsAll(remote.Strings(KeyTokenIDs), []string{tokenID})
		},
	}
}
