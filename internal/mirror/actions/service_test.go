package actions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/notify"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/overlay"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/reconciler"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/store"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/tournament"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/tracker"
)

const (
	tournamentAddr = "0xt"
	account        = "0xa"
)

type outcome struct {
	rec model.Receipt
	err error
}

// fakeSubmitter segura cada submissão até o teste liberar um desfecho
type fakeSubmitter struct {
	mu       sync.Mutex
	calls    [][]model.Call
	started  chan struct{}
	outcomes chan outcome
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{started: make(chan struct{}, 8), outcomes: make(chan outcome, 8)}
}

func (f *fakeSubmitter) Submit(ctx context.Context, calls []model.Call) (model.Receipt, error) {
	f.mu.Lock()
	f.calls = append(f.calls, calls)
	f.mu.Unlock()
	f.started <- struct{}{}
	select {
	case o := <-f.outcomes:
		return o.rec, o.err
	case <-ctx.Done():
		return model.Receipt{}, ctx.Err()
	}
}

func (f *fakeSubmitter) lastCalls() []model.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type recordingSink struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (s *recordingSink) Notify(_ context.Context, n notify.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
}

func (s *recordingSink) all() []notify.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Notice(nil), s.notices...)
}

type recordingRefresher struct {
	mu  sync.Mutex
	ids []model.ID
}

func (r *recordingRefresher) Refresh(_ context.Context, ids ...model.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, ids...)
	return nil
}

// remoteState responde leituras diretas com o último valor gravado pelo teste
type remoteState struct {
	mu       sync.Mutex
	payloads map[model.ID]model.Payload
	versions map[model.ID]model.Version
}

func newRemoteState() *remoteState {
	return &remoteState{payloads: map[model.ID]model.Payload{}, versions: map[model.ID]model.Version{}}
}

func (r *remoteState) set(id model.ID, p model.Payload, v model.Version) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads[id] = p
	r.versions[id] = v
}

func (r *remoteState) Fetch(_ context.Context, id model.ID) (model.Payload, model.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payloads[id]
	if !ok {
		return nil, 0, model.ErrNotFound
	}
	return p.Clone(), r.versions[id], nil
}

type fixture struct {
	store     *store.Store
	overlay   *overlay.Overlay
	tracker   *tracker.Tracker
	submitter *fakeSubmitter
	sink      *recordingSink
	refresher *recordingRefresher
	svc       *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:     store.New(),
		submitter: newFakeSubmitter(),
		sink:      &recordingSink{},
		refresher: &recordingRefresher{},
	}
	f.store.Merge(tournament.TournamentID("7"), model.Payload{tournament.KeyEntryCount: 5}, 1)
	f.overlay = overlay.New(f.store)
	f.tracker = tracker.New(f.overlay)
	base := []Option{WithSink(f.sink), WithRefresher(f.refresher)}
	f.svc = New(f.tracker, f.overlay, f.submitter, Config{TournamentAddress: tournamentAddr, Account: account}, append(base, opts...)...)
	return f
}

func (f *fixture) entries(t *testing.T) int64 {
	t.Helper()
	p, ok := f.svc.View(tournament.TournamentID("7"))
	require.True(t, ok)
	return p.Int(tournament.KeyEntryCount)
}

func enterReq() EnterRequest {
	return EnterRequest{
		TournamentID:   "7",
		TournamentName: "cup",
		PlayerName:     "alice",
		PlayerAddress:  account,
		EntryFee:       tournament.None[tournament.EntryFee](),
		Qualification:  tournament.None[tournament.QualificationProof](),
	}
}

type result struct {
	res Result
	err error
}

func runAsync(fn func() (Result, error)) <-chan result {
	ch := make(chan result, 1)
	go func() {
		res, err := fn()
		ch <- result{res, err}
	}()
	return ch
}

func TestEnterFailureRevertsBeforeErrorSurfaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	done := runAsync(func() (Result, error) { return f.svc.EnterTournament(ctx, enterReq()) })
	<-f.submitter.started

	require.Equal(t, int64(6), f.entries(t), "optimistic view visible before the outcome")
	require.Empty(t, f.sink.all(), "no notice before wait settles")

	f.submitter.outcomes <- outcome{err: errors.New("user rejected")}
	r := <-done

	require.ErrorIs(t, r.err, ErrSubmissionFailed)
	require.ErrorContains(t, r.err, "user rejected")
	require.Equal(t, int64(5), f.entries(t))

	notices := f.sink.all()
	require.Len(t, notices, 1)
	require.Equal(t, notify.KindFailure, notices[0].Kind)
	require.Equal(t, r.res.Tx, notices[0].Tx)

	tx, ok := f.svc.Transaction(r.res.Tx)
	require.True(t, ok)
	require.Equal(t, tracker.StateFailed, tx.State)
	require.Empty(t, f.refresher.ids)
}

func TestEnterSuccessKeepsStrictPatchUntilEcho(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	done := runAsync(func() (Result, error) { return f.svc.EnterTournament(ctx, enterReq()) })
	<-f.submitter.started
	f.submitter.outcomes <- outcome{rec: model.Receipt{TxHash: "0x1", Status: model.ReceiptAccepted}}
	r := <-done

	require.NoError(t, r.err)
	require.Equal(t, "0x1", r.res.Receipt.TxHash)
	require.Equal(t, int64(6), f.entries(t))
	require.Equal(t, 1, f.overlay.Pending(tournament.TournamentID("7")))

	notices := f.sink.all()
	require.Len(t, notices, 1)
	require.Equal(t, notify.KindSuccess, notices[0].Kind)
	require.Equal(t, "Entered tournament cup", notices[0].Description)

	tx, _ := f.svc.Transaction(r.res.Tx)
	require.Equal(t, tracker.StateConfirmed, tx.State)
	require.ElementsMatch(t, []model.ID{tournament.TournamentID("7"), tournament.EntriesID("7", account)}, f.refresher.ids)

	calls := f.submitter.lastCalls()
	require.Len(t, calls, 1)
	require.Equal(t, tournament.EntrypointEnterTournament, calls[0].Entrypoint)
}

func TestEnterWithEntryFeeApprovesFirst(t *testing.T) {
	f := newFixture(t)
	req := enterReq()
	req.EntryFee = tournament.Some(tournament.EntryFee{TokenAddress: "0xe", Amount: decimal.NewFromInt(50)})

	done := runAsync(func() (Result, error) { return f.svc.EnterTournament(context.Background(), req) })
	<-f.submitter.started
	f.submitter.outcomes <- outcome{rec: model.Receipt{Status: model.ReceiptAccepted}}
	require.NoError(t, (<-done).err)

	calls := f.submitter.lastCalls()
	require.Len(t, calls, 2)
	require.Equal(t, tournament.EntrypointApprove, calls[0].Entrypoint)
	require.Equal(t, "0xe", calls[0].Target)
	require.Equal(t, []string{tournamentAddr, "50", "0"}, calls[0].Calldata)
}

func TestRevertedReceiptIsFailure(t *testing.T) {
	f := newFixture(t)
	done := runAsync(func() (Result, error) { return f.svc.EnterTournament(context.Background(), enterReq()) })
	<-f.submitter.started
	f.submitter.outcomes <- outcome{rec: model.Receipt{TxHash: "0x2", Status: model.ReceiptReverted, Reason: "tournament closed"}}

	r := <-done
	require.ErrorIs(t, r.err, ErrSubmissionFailed)
	require.ErrorIs(t, r.err, ErrReverted)
	require.Equal(t, int64(5), f.entries(t))
}

func TestCallerTimeoutRevertsOrphan(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.svc.EnterTournament(ctx, enterReq())
	require.ErrorIs(t, err, ErrSubmissionFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, int64(5), f.entries(t))
	require.Equal(t, 0, f.overlay.Pending(tournament.TournamentID("7")))

	// a submissão segue viva depois do timeout; o desfecho tardio não ressuscita o patch
	f.submitter.outcomes <- outcome{rec: model.Receipt{Status: model.ReceiptAccepted}}
	require.Eventually(t, func() bool { return len(f.submitter.outcomes) == 0 }, time.Second, 5*time.Millisecond)
	require.Equal(t, int64(5), f.entries(t))
	require.Len(t, f.sink.all(), 1)
}

func TestDuplicateTransactionIsSurfaced(t *testing.T) {
	f := newFixture(t, WithIDGenerator(func() model.TxID { return "fixed" }))

	done := runAsync(func() (Result, error) { return f.svc.SubmitScores(context.Background(), "7", "cup", []string{"g1"}) })
	<-f.submitter.started

	_, err := f.svc.SubmitScores(context.Background(), "7", "cup", []string{"g2"})
	require.ErrorIs(t, err, overlay.ErrDuplicateTransaction)

	f.submitter.outcomes <- outcome{rec: model.Receipt{Status: model.ReceiptAccepted}}
	require.NoError(t, (<-done).err)

	p, _ := f.svc.View(tournament.TournamentID("7"))
	require.Equal(t, []string{"g1"}, p.Strings(tournament.KeySubmittedGameIDs))
}

func TestCreateTournamentAndAddPrizesIsOneTransaction(t *testing.T) {
	f := newFixture(t)
	tour := tournament.Tournament{ID: "8", Name: "open"}
	prizes := []tournament.Prize{
		{TokenAddress: "0xe", Token: tournament.ERC20{Amount: decimal.NewFromInt(10)}, PayoutPosition: 1},
		{TokenAddress: "0xn", Token: tournament.ERC721{TokenID: "3"}, PayoutPosition: 2},
	}

	done := runAsync(func() (Result, error) { return f.svc.CreateTournamentAndAddPrizes(context.Background(), tour, prizes) })
	<-f.submitter.started

	p, ok := f.svc.View(tournament.TournamentID("8"))
	require.True(t, ok, "create folds over an absent entity")
	require.Len(t, p.Maps(tournament.KeyPrizes), 2)

	f.submitter.outcomes <- outcome{rec: model.Receipt{Status: model.ReceiptAccepted}}
	r := <-done
	require.NoError(t, r.err)

	calls := f.submitter.lastCalls()
	require.Len(t, calls, 5)
	require.Equal(t, tournament.EntrypointCreateTournament, calls[0].Entrypoint)
	require.Equal(t, tournament.EntrypointApprove, calls[3].Entrypoint)
	require.Equal(t, tournament.EntrypointAddPrize, calls[4].Entrypoint)

	// eager: dobrado no store no commit
	rec, ok := f.store.Get(tournament.TournamentID("8"))
	require.True(t, ok)
	require.True(t, rec.Speculative)
	require.Equal(t, account, rec.Payload.String(tournament.KeyCreator))
	require.Equal(t, 0, f.overlay.PendingTx(r.res.Tx))

	allowance, ok := f.store.Read(tournament.AllowanceID("0xn", account, tournamentAddr))
	require.True(t, ok)
	require.Equal(t, []string{"3"}, allowance.Strings(tournament.KeyTokenIDs))
}

func TestAddPrizeWithoutNotice(t *testing.T) {
	f := newFixture(t)
	prize := tournament.Prize{TokenAddress: "0xe", Token: tournament.ERC20{Amount: decimal.NewFromInt(10)}, PayoutPosition: 1}

	done := runAsync(func() (Result, error) { return f.svc.AddPrize(context.Background(), "7", "cup", prize, false) })
	<-f.submitter.started
	f.submitter.outcomes <- outcome{rec: model.Receipt{Status: model.ReceiptAccepted}}
	require.NoError(t, (<-done).err)
	require.Empty(t, f.sink.all())

	p, _ := f.svc.View(tournament.TournamentID("7"))
	require.Len(t, p.Maps(tournament.KeyPrizes), 1)
	require.Equal(t, 1, f.overlay.Pending(tournament.TournamentID("7")), "tournament patch is strict")
	require.Equal(t, 0, f.overlay.Pending(tournament.AllowanceID("0xe", account, tournamentAddr)), "allowance patch is eager")
}

func TestApproveERC20MultipleSumsPerAddress(t *testing.T) {
	f := newFixture(t)
	tokens := []tournament.Token{
		{Address: "0xe", Type: tournament.ERC20{Amount: decimal.NewFromInt(4)}},
		{Address: "0xe", Type: tournament.ERC20{Amount: decimal.NewFromInt(6)}},
		{Address: "0xf", Type: tournament.ERC20{Amount: decimal.NewFromInt(1)}},
	}
	done := runAsync(func() (Result, error) { return f.svc.ApproveERC20Multiple(context.Background(), tokens) })
	<-f.submitter.started
	f.submitter.outcomes <- outcome{rec: model.Receipt{Status: model.ReceiptAccepted}}
	require.NoError(t, (<-done).err)

	calls := f.submitter.lastCalls()
	require.Len(t, calls, 2)
	require.Equal(t, []string{tournamentAddr, "10", "0"}, calls[0].Calldata)

	p, ok := f.store.Read(tournament.AllowanceID("0xe", account, tournamentAddr))
	require.True(t, ok)
	require.Equal(t, "10", p.String(tournament.KeyAmount))

	_, err := f.svc.ApproveERC20Multiple(context.Background(), nil)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestMintAndBalance(t *testing.T) {
	f := newFixture(t)
	bal, err := f.svc.Balance(context.Background(), "0xe", account)
	require.NoError(t, err)
	require.True(t, bal.IsZero())

	done := runAsync(func() (Result, error) {
		return f.svc.MintERC20(context.Background(), "0xe", account, decimal.RequireFromString("2.5"))
	})
	<-f.submitter.started
	bal, _ = f.svc.Balance(context.Background(), "0xe", account)
	require.Equal(t, "2.5", bal.String())

	f.submitter.outcomes <- outcome{rec: model.Receipt{Status: model.ReceiptAccepted}}
	require.NoError(t, (<-done).err)
	bal, _ = f.svc.Balance(context.Background(), "0xe", account)
	require.Equal(t, "2.5", bal.String(), "strict mint stays layered until the echo")

	_, err = f.svc.MintERC20(context.Background(), "0xe", account, decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestInvalidRequestsDoNotSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EnterTournament(ctx, EnterRequest{})
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.svc.DistributePrizes(ctx, "7", "cup", nil)
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.svc.EndGame(ctx, "", "1", 10)
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.svc.ApproveERC721Multiple(ctx, []tournament.Token{{Address: "0xe", Type: tournament.ERC20{}}})
	require.ErrorIs(t, err, ErrInvalidRequest)

	require.Empty(t, f.submitter.calls)
	require.Equal(t, 0, f.tracker.Len())
}

// a leitura direta usa o Reconciler de verdade: o eco absorvido aposenta o mint
// e o mesmo eco vindo depois pelo stream não soma de novo
func TestMintEchoReadByRefreshIsCountedOnce(t *testing.T) {
	st := store.New()
	ov := overlay.New(st)
	tr := tracker.New(ov)
	remote := newRemoteState()
	rec := reconciler.New(st, ov, tr, reconciler.WithFetcher(remote))
	sub := newFakeSubmitter()
	svc := New(tr, ov, sub, Config{TournamentAddress: tournamentAddr, Account: account}, WithRefresher(rec))

	bid := tournament.BalanceID("0xe", account)
	done := runAsync(func() (Result, error) {
		return svc.MintERC20(context.Background(), "0xe", account, decimal.NewFromInt(10))
	})
	<-sub.started
	remote.set(bid, model.Payload{tournament.KeyToken: "0xe", tournament.KeyOwner: account, tournament.KeyAmount: "10"}, 1)
	sub.outcomes <- outcome{rec: model.Receipt{Status: model.ReceiptAccepted}}
	r := <-done
	require.NoError(t, r.err)

	require.Zero(t, svc.Pending(bid))
	bal, err := svc.Balance(context.Background(), "0xe", account)
	require.NoError(t, err)
	require.Equal(t, "10", bal.String())

	out, err := rec.Reconcile(context.Background(), bid, model.Payload{tournament.KeyAmount: "10"}, 1)
	require.NoError(t, err)
	require.True(t, out.Stale)
	bal, _ = svc.Balance(context.Background(), "0xe", account)
	require.Equal(t, "10", bal.String())

	tx, _ := svc.Transaction(r.res.Tx)
	require.Equal(t, tracker.StateConfirmed, tx.State)
}

// eco do stream antes do commit: a transação fecha pelo eco e a soma não dobra
func TestMintEchoBeforeCommitIsCountedOnce(t *testing.T) {
	f := newFixture(t)
	rec := reconciler.New(f.store, f.overlay, f.tracker)
	bid := tournament.BalanceID("0xe", account)
	_, err := rec.Reconcile(context.Background(), bid, model.Payload{tournament.KeyAmount: "5"}, 1)
	require.NoError(t, err)

	done := runAsync(func() (Result, error) {
		return f.svc.MintERC20(context.Background(), "0xe", account, decimal.NewFromInt(10))
	})
	<-f.submitter.started
	out, err := rec.Reconcile(context.Background(), bid, model.Payload{tournament.KeyAmount: "15"}, 2)
	require.NoError(t, err)
	require.Len(t, out.Retired, 1)

	f.submitter.outcomes <- outcome{rec: model.Receipt{Status: model.ReceiptAccepted}}
	require.NoError(t, (<-done).err)

	require.Zero(t, f.overlay.Pending(bid))
	bal, _ := f.svc.Balance(context.Background(), "0xe", account)
	require.Equal(t, "15", bal.String())
}

// o eco confirmou antes de a submissão devolver erro: vale o estado do tracker
func TestSubmissionErrorAfterEchoFollowsTracker(t *testing.T) {
	f := newFixture(t)
	rec := reconciler.New(f.store, f.overlay, f.tracker)
	tid := tournament.TournamentID("7")

	done := runAsync(func() (Result, error) { return f.svc.EnterTournament(context.Background(), enterReq()) })
	<-f.submitter.started
	_, err := rec.Reconcile(context.Background(), tid, model.Payload{tournament.KeyEntryCount: 6}, 2)
	require.NoError(t, err)
	_, err = rec.Reconcile(context.Background(), tournament.EntriesID("7", account), model.Payload{tournament.KeyEntryCount: 1}, 1)
	require.NoError(t, err)

	f.submitter.outcomes <- outcome{err: errors.New("relayer timeout")}
	r := <-done
	require.NoError(t, r.err)

	tx, ok := f.svc.Transaction(r.res.Tx)
	require.True(t, ok)
	require.Equal(t, tracker.StateConfirmed, tx.State)

	notices := f.sink.all()
	require.Len(t, notices, 1)
	require.Equal(t, notify.KindSuccess, notices[0].Kind)
	require.Equal(t, int64(6), f.entries(t))
}

// entradas concorrentes esperam contagens distintas: um eco com uma entrada a mais
// aposenta só uma delas
func TestConcurrentEntersRetireOneEchoEach(t *testing.T) {
	const n = 8
	f := newFixture(t)
	rec := reconciler.New(f.store, f.overlay, f.tracker)
	tid := tournament.TournamentID("7")

	results := make([]<-chan result, n)
	for i := range results {
		results[i] = runAsync(func() (Result, error) { return f.svc.EnterTournament(context.Background(), enterReq()) })
	}
	for range n {
		<-f.submitter.started
	}
	require.Equal(t, int64(5+n), f.entries(t))

	for range n {
		f.submitter.outcomes <- outcome{rec: model.Receipt{Status: model.ReceiptAccepted}}
	}
	for _, ch := range results {
		require.NoError(t, (<-ch).err)
	}

	out, err := rec.Reconcile(context.Background(), tid, model.Payload{tournament.KeyEntryCount: 6}, 2)
	require.NoError(t, err)
	require.Empty(t, out.Retired, "the player entries mutation of the same tx is still layered")
	require.Equal(t, n-1, f.overlay.Pending(tid))
	require.Equal(t, int64(5+n), f.entries(t))

	_, err = rec.Reconcile(context.Background(), tid, model.Payload{tournament.KeyEntryCount: 5 + n}, 3)
	require.NoError(t, err)
	require.Zero(t, f.overlay.Pending(tid))
	require.Equal(t, int64(5+n), f.entries(t))
}
