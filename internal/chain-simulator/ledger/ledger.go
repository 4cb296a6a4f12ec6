// Package ledger é a ledger em memória do simulador: aplica as calls dos
// contratos de torneio e de token e versiona cada entidade alterada.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/tournament"
)

var (
	ErrUnknownEntrypoint     = errors.New("unknown entrypoint")
	ErrBadCalldata           = errors.New("malformed calldata")
	ErrTournamentNotFound    = errors.New("tournament not found")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrGameEnded             = errors.New("game already ended")
)

// Entity é uma entidade da ledger numa versão
type Entity struct {
	ID      model.ID
	Payload model.Payload
	Version model.Version
}

type Ledger struct {
	mu          sync.RWMutex
	entities    map[model.ID]Entity
	tournaments int64
	nft         map[string]bool
}

// New cria a ledger vazia. erc721 lista os tokens não fungíveis já conhecidos;
// add_prize com variante ERC721 também registra o token.
func New(erc721 ...string) *Ledger {
	l := &Ledger{entities: make(map[model.ID]Entity), nft: make(map[string]bool)}
	for _, t := range erc721 {
		l.nft[tournament.NormalizeAddr(t)] = true
	}
	return l
}

func (l *Ledger) Get(id model.ID) (Entity, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entities[id]
	if !ok {
		return Entity{}, false
	}
	e.Payload = e.Payload.Clone()
	return e, true
}

// Tournaments devolve quantos torneios já foram criados. O próximo recebe Tournaments()+1.
func (l *Ledger) Tournaments() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tournaments
}

// Execute aplica as calls em ordem, como uma transação: se alguma falha nada muda.
// Devolve as entidades alteradas com a versão nova, ordenadas por id.
func (l *Ledger) Execute(account string, calls []model.Call) ([]Entity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := &batch{l: l, account: account, staged: map[model.ID]model.Payload{}, nft: map[string]bool{}, tournaments: l.tournaments}
	for i, c := range calls {
		if err := b.apply(c); err != nil {
			return nil, fmt.Errorf("call %d (%s): %w", i, c.Entrypoint, err)
		}
	}

	out := make([]Entity, 0, len(b.staged))
	for id, p := range b.staged {
		e := Entity{ID: id, Payload: p, Version: l.entities[id].Version + 1}
		l.entities[id] = e
		out = append(out, Entity{ID: id, Payload: p.Clone(), Version: e.Version})
	}
	for t := range b.nft {
		l.nft[t] = true
	}
	l.tournaments = b.tournaments
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// batch acumula as escritas de um Execute até o commit
type batch struct {
	l           *Ledger
	account     string
	staged      map[model.ID]model.Payload
	nft         map[string]bool
	tournaments int64
}

func (b *batch) get(id model.ID) model.Payload {
	if p, ok := b.staged[id]; ok {
		return p
	}
	if e, ok := b.l.entities[id]; ok {
		return e.Payload.Clone()
	}
	return nil
}

func (b *batch) put(id model.ID, p model.Payload) { b.staged[id] = p }

func (b *batch) isNFT(token string) bool {
	k := tournament.NormalizeAddr(token)
	return b.l.nft[k] || b.nft[k]
}

func (b *batch) apply(c model.Call) error {
	d := c.Calldata
	switch c.Entrypoint {
	case tournament.EntrypointApprove:
		if len(d) < 2 {
			return ErrBadCalldata
		}
		return b.approve(c.Target, d[0], d[1])
	case tournament.EntrypointEnterTournament:
		if len(d) < 4 {
			return ErrBadCalldata
		}
		return b.enter(c.Target, d[0])
	case tournament.EntrypointSubmitScores:
		tid, ids, err := array(d)
		if err != nil {
			return err
		}
		return b.extend(tid, tournament.KeySubmittedGameIDs, ids)
	case tournament.EntrypointAddPrize:
		if len(d) < 5 {
			return ErrBadCalldata
		}
		return b.addPrize(d)
	case tournament.EntrypointCreateTournament:
		if len(d) < 7 {
			return ErrBadCalldata
		}
		return b.create(d)
	case tournament.EntrypointDistributePrizes:
		tid, keys, err := array(d)
		if err != nil {
			return err
		}
		return b.extend(tid, tournament.KeyClaimedPrizes, keys)
	case tournament.EntrypointEndGame:
		if len(d) < 2 {
			return ErrBadCalldata
		}
		return b.endGame(c.Target, d[0], d[1])
	case tournament.EntrypointMint:
		if len(d) < 2 {
			return ErrBadCalldata
		}
		return b.mint(c.Target, d[0], d[1])
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEntrypoint, c.Entrypoint)
	}
}

func (b *batch) approve(token, spender, value string) error {
	id := tournament.AllowanceID(token, b.account, spender)
	p := b.get(id)
	if p == nil {
		p = model.Payload{tournament.KeyToken: token, tournament.KeyOwner: b.account, tournament.KeySpender: spender}
	}
	if b.isNFT(token) {
		b.put(id, p.With(tournament.KeyTokenIDs, union(p.Strings(tournament.KeyTokenIDs), value)))
		return nil
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return fmt.Errorf("%w: amount %q", ErrBadCalldata, value)
	}
	b.put(id, p.With(tournament.KeyAmount, amount.String()))
	return nil
}

// enter consome a allowance da taxa de entrada (quando existe) e soma uma entrada
// no torneio e no contador do signatário
func (b *batch) enter(contract, tid string) error {
	id := tournament.TournamentID(tid)
	t := b.get(id)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrTournamentNotFound, tid)
	}
	if fee, ok := t[tournament.KeyEntryFee].(map[string]any); ok {
		feeP := model.Payload(fee)
		token := feeP.String(tournament.KeyTokenAddress)
		aid := tournament.AllowanceID(token, b.account, contract)
		a := b.get(aid)
		left := a.Decimal(tournament.KeyAmount).Sub(feeP.Decimal(tournament.KeyAmount))
		if a == nil || left.IsNegative() {
			return ErrInsufficientAllowance
		}
		b.put(aid, a.With(tournament.KeyAmount, left.String()))
	}
	b.put(id, t.With(tournament.KeyEntryCount, t.Int(tournament.KeyEntryCount)+1))

	eid := tournament.EntriesID(tid, b.account)
	e := b.get(eid)
	if e == nil {
		e = model.Payload{tournament.KeyTournamentID: tid, tournament.KeyPlayer: b.account}
	}
	b.put(eid, e.With(tournament.KeyEntryCount, e.Int(tournament.KeyEntryCount)+1))
	return nil
}

func (b *batch) extend(tid, key string, items []string) error {
	id := tournament.TournamentID(tid)
	t := b.get(id)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrTournamentNotFound, tid)
	}
	b.put(id, t.With(key, union(t.Strings(key), items...)))
	return nil
}

// addPrize lê [tid, token, variante, valor, posição]
func (b *batch) addPrize(d []string) error {
	id := tournament.TournamentID(d[0])
	t := b.get(id)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrTournamentNotFound, d[0])
	}
	pos, err := strconv.Atoi(d[4])
	if err != nil {
		return fmt.Errorf("%w: payout position %q", ErrBadCalldata, d[4])
	}
	var tok tournament.TokenType
	switch d[2] {
	case "0":
		amount, err := decimal.NewFromString(d[3])
		if err != nil {
			return fmt.Errorf("%w: amount %q", ErrBadCalldata, d[3])
		}
		tok = tournament.ERC20{Amount: amount}
	case "1":
		tok = tournament.ERC721{TokenID: d[3]}
		b.nft[tournament.NormalizeAddr(d[1])] = true
	default:
		return fmt.Errorf("%w: token variant %q", ErrBadCalldata, d[2])
	}

	prize := tournament.PrizePayload(tournament.Prize{TournamentID: d[0], TokenAddress: d[1], Token: tok, PayoutPosition: pos})
	list := make([]any, 0, len(t.Maps(tournament.KeyPrizes))+1)
	for _, p := range t.Maps(tournament.KeyPrizes) {
		list = append(list, map[string]any(p))
	}
	b.put(id, t.With(tournament.KeyPrizes, append(list, prize)))
	return nil
}

// create lê [nome, descrição, início, fim, fim das submissões, jogo, Option(taxa)]
// e atribui o próximo id sequencial
func (b *batch) create(d []string) error {
	var sched [3]int64
	for i := range sched {
		v, err := strconv.ParseInt(d[2+i], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: schedule %q", ErrBadCalldata, d[2+i])
		}
		sched[i] = v
	}
	t := tournament.Tournament{
		Name:        d[0],
		Description: d[1],
		Creator:     b.account,
		GameAddress: d[5],
		Schedule:    tournament.Schedule{Start: sched[0], End: sched[1], SubmissionEnd: sched[2]},
	}
	if d[6] == "0" {
		if len(d) < 9 {
			return ErrBadCalldata
		}
		amount, err := decimal.NewFromString(d[8])
		if err != nil {
			return fmt.Errorf("%w: entry fee %q", ErrBadCalldata, d[8])
		}
		t.EntryFee = tournament.Some(tournament.EntryFee{TokenAddress: d[7], Amount: amount})
	}
	b.tournaments++
	t.ID = strconv.FormatInt(b.tournaments, 10)
	b.put(tournament.TournamentID(t.ID), tournament.TournamentPayload(t))
	return nil
}

func (b *batch) endGame(gameAddress, gameID, score string) error {
	s, err := strconv.ParseInt(score, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: score %q", ErrBadCalldata, score)
	}
	id := tournament.GameID(gameAddress, gameID)
	g := b.get(id)
	if g.Bool(tournament.KeyEnded) {
		return ErrGameEnded
	}
	if g == nil {
		g = model.Payload{tournament.KeyGameID: gameID}
	}
	b.put(id, g.With(tournament.KeyScore, s).With(tournament.KeyEnded, true))
	return nil
}

func (b *batch) mint(token, recipient, value string) error {
	id := tournament.BalanceID(token, recipient)
	p := b.get(id)
	if p == nil {
		p = model.Payload{tournament.KeyToken: token, tournament.KeyOwner: recipient}
	}
	if b.isNFT(token) {
		ids := p.Strings(tournament.KeyTokenIDs)
		for _, have := range ids {
			if have == value {
				return fmt.Errorf("%w: token %s already minted", ErrBadCalldata, value)
			}
		}
		next := p.With(tournament.KeyAmount, p.Decimal(tournament.KeyAmount).Add(decimal.NewFromInt(1)).String())
		b.put(id, next.With(tournament.KeyTokenIDs, union(ids, value)))
		return nil
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return fmt.Errorf("%w: amount %q", ErrBadCalldata, value)
	}
	b.put(id, p.With(tournament.KeyAmount, p.Decimal(tournament.KeyAmount).Add(amount).String()))
	return nil
}

// array lê [tid, n, itens...]
func array(d []string) (string, []string, error) {
	if len(d) < 2 {
		return "", nil, ErrBadCalldata
	}
	n, err := strconv.Atoi(d[1])
	if err != nil || n < 0 || len(d) < 2+n {
		return "", nil, ErrBadCalldata
	}
	return d[0], d[2 : 2+n], nil
}

func union(existing []string, items ...string) []any {
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
