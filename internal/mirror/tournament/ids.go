package tournament

import (
	"strings"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
)

const (
	prefixTournament = "tournament"
	prefixEntries    = "entries"
	prefixAllowance  = "allowance"
	prefixBalance    = "balance"
	prefixGame       = "game"
)

func TournamentID(id string) model.ID {
	return join(prefixTournament, id)
}

// EntriesID é o contador de entradas de um jogador em um torneio
func EntriesID(tournamentID, player string) model.ID {
	return join(prefixEntries, tournamentID, NormalizeAddr(player))
}

func AllowanceID(token, owner, spender string) model.ID {
	return join(prefixAllowance, NormalizeAddr(token), NormalizeAddr(owner), NormalizeAddr(spender))
}

func BalanceID(token, owner string) model.ID {
	return join(prefixBalance, NormalizeAddr(token), NormalizeAddr(owner))
}

func GameID(gameAddress, gameID string) model.ID {
	return join(prefixGame, NormalizeAddr(gameAddress), gameID)
}

// Kind devolve o prefixo de um id de entidade ("tournament", "balance"...)
func Kind(id model.ID) string {
	k, _, _ := strings.Cut(string(id), ":")
	return k
}

// Parts devolve os componentes do id depois do prefixo
func Parts(id model.ID) []string {
	parts := strings.Split(string(id), ":")
	if len(parts) < 2 {
		return nil
	}
	return parts[1:]
}

func join(prefix string, parts ...string) model.ID {
	return model.ID(prefix + ":" + strings.Join(parts, ":"))
}

// NormalizeAddr põe o endereço em caixa baixa e sem zero-padding.
// Endereços chegam com e sem zero-padding e em caixa mista.
func NormalizeAddr(a string) string {
	a = strings.ToLower(strings.TrimSpace(a))
	if rest, ok := strings.CutPrefix(a, "0x"); ok {
		rest = strings.TrimLeft(rest, "0")
		if rest == "" {
			rest = "0"
		}
		return "0x" + rest
	}
	return a
}
