package tournament

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
)

func TestIDsNormalizeAddresses(t *testing.T) {
	require.Equal(t, model.ID("allowance:0xabc:0x1:0x2"), AllowanceID("0x000ABC", "0x01", " 0x2"))
	require.Equal(t, model.ID("balance:0x0:0xff"), BalanceID("0x000", "0xFF"))
	require.Equal(t, "tournament", Kind(TournamentID("7")))
	require.Equal(t, []string{"7", "0xbeef"}, Parts(EntriesID("7", "0x0beef")))
	require.Nil(t, Parts("bare"))
}

func TestOption(t *testing.T) {
	fee := Some(EntryFee{TokenAddress: "0x1", Amount: decimal.NewFromInt(10)})
	v, ok := fee.Get()
	require.True(t, ok)
	require.Equal(t, "10", v.Amount.String())
	require.False(t, None[EntryFee]().IsSome())
}

func TestCallEncoding(t *testing.T) {
	call := EnterTournamentCall("0xT", "7", "alice", "0xA", None[QualificationProof]())
	require.Equal(t, []string{"7", "alice", "0xA", optionNone}, call.Calldata)

	call = EnterTournamentCall("0xT", "7", "alice", "0xA", Some(QualificationProof{Kind: "token", Data: []string{"0x9", "3"}}))
	require.Equal(t, []string{"7", "alice", "0xA", optionSome, "token", "2", "0x9", "3"}, call.Calldata)

	call = AddPrizeCall("0xT", Prize{TournamentID: "7", TokenAddress: "0xE", Token: ERC721{TokenID: "42"}, PayoutPosition: 1})
	require.Equal(t, []string{"7", "0xE", "1", "42", "1"}, call.Calldata)

	call = SubmitScoresCall("0xT", "7", []string{"a", "b"})
	require.Equal(t, []string{"7", "2", "a", "b"}, call.Calldata)

	require.Equal(t, []string{"0xT", "15", "0"}, ApproveCall("0xE", "0xT", "15").Calldata)
	require.Equal(t, EntrypointApprove, ApproveCall("0xE", "0xT", "15").Entrypoint)
}

func TestSumApprovals(t *testing.T) {
	got := SumApprovals([]Token{
		{Address: "0xA", Type: ERC20{Amount: decimal.NewFromInt(5)}},
		{Address: "0xB", Type: ERC20{Amount: decimal.NewFromInt(1)}},
		{Address: "0x0a", Type: ERC20{Amount: decimal.RequireFromString("2.5")}},
		{Address: "0xC", Type: ERC721{TokenID: "1"}},
	})
	require.Len(t, got, 2)
	require.Equal(t, "0xA", got[0].Address)
	require.Equal(t, "7.5", ApproveValue(got[0].Type))
	require.Equal(t, "1", ApproveValue(got[1].Type))
}

func TestEnterPatchComposesAndObserves(t *testing.T) {
	base := model.Payload{KeyEntryCount: 5}
	mid := EnterPatch().Apply(base.Clone())
	next := EnterPatch().Apply(mid)
	require.Equal(t, int64(7), next.Int(KeyEntryCount))
	require.Equal(t, int64(5), base.Int(KeyEntryCount), "patch must not mutate its input")

	// a segunda entrada só é observada quando o remoto passa da contagem deixada pela primeira
	require.False(t, EnterPatch().Observed(mid, model.Payload{KeyEntryCount: 6}))
	require.True(t, EnterPatch().Observed(mid, model.Payload{KeyEntryCount: 7}))
	require.True(t, EnterPatch().Observed(base, model.Payload{KeyEntryCount: 6}))
	require.False(t, EnterPatch().Observed(nil, nil))
	require.Nil(t, EnterPatch().Superseded)
}

func TestPlayerEntriesCreatesEntity(t *testing.T) {
	p := PlayerEntriesPatch("7", "0xA").Apply(nil)
	require.Equal(t, int64(1), p.Int(KeyEntryCount))
	require.Equal(t, "0xA", p.String(KeyPlayer))
}

func TestPrizePatchMatchesRemoteEcho(t *testing.T) {
	prize := Prize{TournamentID: "7", TokenAddress: "0xE", Token: ERC20{Amount: decimal.NewFromInt(100)}, PayoutPosition: 1}
	patch := AddPrizePatch(prize)

	next := patch.Apply(model.Payload{KeyPrizes: []any{}})
	require.Len(t, next.Maps(KeyPrizes), 1)

	remote, err := model.Normalize(next)
	require.NoError(t, err)
	require.True(t, patch.Superseded(remote), "JSON round trip must still match")

	other := AddPrizePatch(Prize{TournamentID: "7", TokenAddress: "0xE", Token: ERC20{Amount: decimal.NewFromInt(99)}, PayoutPosition: 1})
	require.False(t, other.Superseded(remote))
}

func TestUnionPatchesAreIdempotent(t *testing.T) {
	p := SubmitScoresPatch([]string{"g1", "g2"})
	once := p.Apply(model.Payload{KeySubmittedGameIDs: []any{"g0", "g1"}})
	twice := p.Apply(once)
	require.Equal(t, []string{"g0", "g1", "g2"}, twice.Strings(KeySubmittedGameIDs))
	require.True(t, p.Superseded(twice))

	d := DistributePatch([]string{"1"})
	require.False(t, d.Superseded(model.Payload{}))
	require.True(t, d.Superseded(d.Apply(nil)))
}

func TestAllowancePatch(t *testing.T) {
	erc20 := AllowancePatch("0xE", "0xO", "0xT", ERC20{Amount: decimal.NewFromInt(3)})
	p := erc20.Apply(model.Payload{KeyAmount: "10"})
	require.Equal(t, "3", p.String(KeyAmount), "approve replaces the allowance")
	require.True(t, erc20.Superseded(model.Payload{KeyAmount: "3"}))

	erc721 := AllowancePatch("0xN", "0xO", "0xT", ERC721{TokenID: "9"})
	p = erc721.Apply(nil)
	require.Equal(t, []string{"9"}, p.Strings(KeyTokenIDs))
	require.Equal(t, "0xT", p.String(KeySpender))
}

func TestCreatePatch(t *testing.T) {
	tour := Tournament{ID: "8", Name: "cup", EntryFee: Some(EntryFee{TokenAddress: "0xE", Amount: decimal.NewFromInt(1)})}
	patch := CreatePatch(tour, []Prize{{TokenAddress: "0xE", Token: ERC721{TokenID: "5"}, PayoutPosition: 1}})

	p := patch.Apply(nil)
	require.Equal(t, "cup", p.String(KeyName))
	prizes := p.Maps(KeyPrizes)
	require.Len(t, prizes, 1)
	require.Equal(t, "8", prizes[0].String(KeyTournamentID))
	require.NotNil(t, p[KeyEntryFee])

	existing := model.Payload{KeyName: "remote"}
	require.Equal(t, "remote", patch.Apply(existing).String(KeyName))
}

func TestMintPatches(t *testing.T) {
	mint := MintERC20Patch("0xE", "0xO", decimal.RequireFromString("1.5"))
	before := model.Payload{KeyAmount: "2"}
	p := mint.Apply(before)
	require.Equal(t, "3.5", p.String(KeyAmount))
	require.True(t, mint.Observed(before, model.Payload{KeyAmount: "3.5"}))
	require.False(t, mint.Observed(before, model.Payload{KeyAmount: "2"}), "a stale balance does not show the mint")
	require.True(t, mint.Observed(nil, model.Payload{KeyAmount: "1.5"}))
	require.False(t, mint.Observed(nil, nil))

	nft := MintERC721Patch("0xN", "0xO", "4")
	p = nft.Apply(nil)
	require.Equal(t, "1", p.String(KeyAmount))
	require.True(t, nft.Superseded(p))
	require.False(t, nft.Superseded(nil))
}

func TestEndGamePatch(t *testing.T) {
	patch := EndGamePatch("3", 120)
	p := patch.Apply(nil)
	require.True(t, p.Bool(KeyEnded))
	require.Equal(t, int64(120), p.Int(KeyScore))
	require.False(t, patch.Superseded(model.Payload{KeyEnded: true, KeyScore: 100}))
	require.True(t, patch.Superseded(model.Payload{KeyEnded: true, KeyScore: float64(120)}))
}
