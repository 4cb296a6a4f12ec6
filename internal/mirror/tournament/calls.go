package tournament

import (
	"strconv"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
)

// Entrypoints dos contratos
const (
	EntrypointApprove          = "approve"
	EntrypointEnterTournament  = "enter_tournament"
	EntrypointSubmitScores     = "submit_scores"
	EntrypointAddPrize         = "add_prize"
	EntrypointCreateTournament = "create_tournament"
	EntrypointDistributePrizes = "distribute_prizes"
	EntrypointEndGame          = "end_game"
	EntrypointMint             = "mint"
)

// codificação das variantes de Option na calldata
const (
	optionSome = "0"
	optionNone = "1"
)

// ApproveCall autoriza spender a movimentar value do token. O "0" final é a parte alta do u256.
func ApproveCall(token, spender, value string) model.Call {
	return model.Call{
		Target:     token,
		Entrypoint: EntrypointApprove,
		Calldata:   []string{spender, value, "0"},
	}
}

func EnterTournamentCall(contract, tournamentID, playerName, playerAddress string, proof Option[QualificationProof]) model.Call {
	data := []string{tournamentID, playerName, playerAddress}
	if q, ok := proof.Get(); ok {
		data = append(data, optionSome, q.Kind, strconv.Itoa(len(q.Data)))
		data = append(data, q.Data...)
	} else {
		data = append(data, optionNone)
	}
	return model.Call{Target: contract, Entrypoint: EntrypointEnterTournament, Calldata: data}
}

func SubmitScoresCall(contract, tournamentID string, gameIDs []string) model.Call {
	return model.Call{Target: contract, Entrypoint: EntrypointSubmitScores, Calldata: withArray([]string{tournamentID}, gameIDs)}
}

func AddPrizeCall(contract string, p Prize) model.Call {
	return model.Call{
		Target:     contract,
		Entrypoint: EntrypointAddPrize,
		Calldata: []string{
			p.TournamentID,
			p.TokenAddress,
			variantIndex(p.Token),
			ApproveValue(p.Token),
			strconv.Itoa(p.PayoutPosition),
		},
	}
}

func CreateTournamentCall(contract string, t Tournament) model.Call {
	data := []string{
		t.Name,
		t.Description,
		strconv.FormatInt(t.Schedule.Start, 10),
		strconv.FormatInt(t.Schedule.End, 10),
		strconv.FormatInt(t.Schedule.SubmissionEnd, 10),
		t.GameAddress,
	}
	if fee, ok := t.EntryFee.Get(); ok {
		data = append(data, optionSome, fee.TokenAddress, fee.Amount.String())
	} else {
		data = append(data, optionNone)
	}
	return model.Call{Target: contract, Entrypoint: EntrypointCreateTournament, Calldata: data}
}

func DistributePrizesCall(contract, tournamentID string, prizeKeys []string) model.Call {
	return model.Call{Target: contract, Entrypoint: EntrypointDistributePrizes, Calldata: withArray([]string{tournamentID}, prizeKeys)}
}

func EndGameCall(gameContract, gameID string, score int64) model.Call {
	return model.Call{
		Target:     gameContract,
		Entrypoint: EntrypointEndGame,
		Calldata:   []string{gameID, strconv.FormatInt(score, 10)},
	}
}

// MintCall cunha value (montante ERC20 ou token id ERC721) para recipient
func MintCall(token, recipient, value string) model.Call {
	return model.Call{Target: token, Entrypoint: EntrypointMint, Calldata: []string{recipient, value, "0"}}
}

func variantIndex(t TokenType) string {
	switch t.(type) {
	case ERC20:
		return "0"
	case ERC721:
		return "1"
	default:
		panic("tournament: unknown token type")
	}
}

// arrays vão prefixados pelo tamanho
func withArray(head []string, items []string) []string {
	out := append(head, strconv.Itoa(len(items)))
	return append(out, items...)
}
