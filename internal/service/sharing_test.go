package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"csgo-tracker/internal/api"
	"csgo-tracker/internal/database"
	"csgo-tracker/internal/domain"
	"csgo-tracker/internal/repository"

	"github.com/rs/zerolog"
)

// shareCode builds a well-formed sharing code ending in the given
// dictionary character, so each suffix yields a distinct code.
func shareCode(suffix byte) string {
	return "CSGO-AAAAA-AAAAA-AAAAA-AAAAA-AAAA" + string(suffix)
}

// scriptedSteam replays a fixed chain: asking for the code after X
// returns chain[X], anything else reports no newer code.
type scriptedSteam struct {
	mu     sync.Mutex
	chain  map[string]string
	denied bool
	calls  int
}

func (s *scriptedSteam) NextCode(_ context.Context, _, _, knownCode string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.denied {
		return "", api.ErrAuthDenied
	}
	next, ok := s.chain[knownCode]
	if !ok {
		return "", api.ErrNoNewerCode
	}
	return next, nil
}

type recordingQueue struct {
	mu    sync.Mutex
	codes []string
}

func (q *recordingQueue) Submit(code string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.codes = append(q.codes, code)
}

func (q *recordingQueue) submitted() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.codes...)
}

func newSharingFixture(t *testing.T, steam NextCoder) (*SharingService, *repository.AccountRepository, *repository.MatchCodeRepository, *recordingQueue) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db, zerolog.Nop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	accounts := repository.NewAccountRepository(db, zerolog.Nop())
	codes := repository.NewMatchCodeRepository(db, zerolog.Nop())
	queue := &recordingQueue{}
	svc := NewSharingService(accounts, codes, steam, queue, zerolog.Nop())
	svc.stepDelay = time.Millisecond
	return svc, accounts, codes, queue
}

func testAccount() domain.SharingAccount {
	return domain.SharingAccount{
		ID:        "p1",
		SteamID64: "76561198000000001",
		AuthCode:  "AAAA-BBBBB-CCCC",
	}
}

func TestFetchChainWalksToEnd(t *testing.T) {
	steam := &scriptedSteam{chain: map[string]string{
		shareCode('B'): shareCode('C'),
		shareCode('C'): shareCode('D'),
	}}
	svc, accounts, codes, queue := newSharingFixture(t, steam)
	ctx := context.Background()

	acc := testAccount()
	if err := accounts.Upsert(ctx, &acc); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := codes.Save(ctx, acc.ID, shareCode('B')); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := svc.FetchChain(ctx, acc); err != nil {
		t.Fatalf("FetchChain: %v", err)
	}

	got := queue.submitted()
	if len(got) != 2 || got[0] != shareCode('C') || got[1] != shareCode('D') {
		t.Fatalf("submitted %v, want both new codes in chain order", got)
	}
	latest, err := codes.Latest(ctx, acc.ID)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest != shareCode('D') {
		t.Errorf("cursor = %s, want the newest code", latest)
	}
}

func TestFetchChainResumesFromLatestCode(t *testing.T) {
	steam := &scriptedSteam{chain: map[string]string{
		shareCode('C'): shareCode('D'),
	}}
	svc, accounts, codes, queue := newSharingFixture(t, steam)
	ctx := context.Background()

	acc := testAccount()
	if err := accounts.Upsert(ctx, &acc); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := codes.Save(ctx, acc.ID, shareCode('B')); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := codes.Save(ctx, acc.ID, shareCode('C')); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := svc.FetchChain(ctx, acc); err != nil {
		t.Fatalf("FetchChain: %v", err)
	}

	got := queue.submitted()
	if len(got) != 1 || got[0] != shareCode('D') {
		t.Fatalf("submitted %v, want only the new code", got)
	}
}

func TestFetchChainAuthDeniedFlagsAccount(t *testing.T) {
	steam := &scriptedSteam{denied: true}
	svc, accounts, codes, _ := newSharingFixture(t, steam)
	ctx := context.Background()

	acc := testAccount()
	if err := accounts.Upsert(ctx, &acc); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := codes.Save(ctx, acc.ID, shareCode('B')); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := svc.FetchChain(ctx, acc); err == nil {
		t.Fatal("FetchChain should surface the auth failure")
	}

	linked, err := accounts.Linked(ctx)
	if err != nil {
		t.Fatalf("Linked: %v", err)
	}
	if len(linked) != 0 {
		t.Errorf("flagged account still listed as linked: %v", linked)
	}
}

func TestRelinkClearsAuthFailure(t *testing.T) {
	steam := &scriptedSteam{}
	svc, accounts, _, queue := newSharingFixture(t, steam)
	ctx := context.Background()

	acc := testAccount()
	if err := accounts.Upsert(ctx, &acc); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := accounts.SetAuthFailed(ctx, acc.ID); err != nil {
		t.Fatalf("SetAuthFailed: %v", err)
	}

	if err := svc.LinkAccount(ctx, acc.ID, acc.SteamID64, "DDDD-EEEEE-FFFF", shareCode('B'), ""); err != nil {
		t.Fatalf("LinkAccount: %v", err)
	}

	linked, err := accounts.Linked(ctx)
	if err != nil {
		t.Fatalf("Linked: %v", err)
	}
	if len(linked) != 1 || linked[0].AuthCode != "DDDD-EEEEE-FFFF" {
		t.Fatalf("linked accounts = %v, want the re-linked account", linked)
	}
	if got := queue.submitted(); len(got) != 1 || got[0] != shareCode('B') {
		t.Errorf("submitted %v, want the known code queued once", got)
	}
}

func TestRunSweepCoversAllLinkedAccounts(t *testing.T) {
	steam := &scriptedSteam{chain: map[string]string{
		shareCode('E'): shareCode('F'),
		shareCode('G'): shareCode('H'),
	}}
	svc, accounts, codes, queue := newSharingFixture(t, steam)
	ctx := context.Background()

	for _, seed := range []struct{ id, code string }{{"p1", shareCode('E')}, {"p2", shareCode('G')}} {
		acc := testAccount()
		acc.ID = seed.id
		if err := accounts.Upsert(ctx, &acc); err != nil {
			t.Fatalf("Upsert %s: %v", seed.id, err)
		}
		if _, err := codes.Save(ctx, seed.id, seed.code); err != nil {
			t.Fatalf("Save %s: %v", seed.id, err)
		}
	}

	if err := svc.RunSweep(ctx); err != nil {
		t.Fatalf("RunSweep: %v", err)
	}

	got := queue.submitted()
	if len(got) != 2 {
		t.Fatalf("submitted %v, want one new code per account", got)
	}
}

func TestRequeuePendingSkipsDownloadedCodes(t *testing.T) {
	svc, _, codes, queue := newSharingFixture(t, &scriptedSteam{})
	ctx := context.Background()

	if _, err := codes.Save(ctx, "p1", shareCode('B')); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := codes.Save(ctx, "p1", shareCode('C')); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := codes.MarkDownloaded(ctx, shareCode('B')); err != nil {
		t.Fatalf("MarkDownloaded: %v", err)
	}

	if err := svc.RequeuePending(ctx); err != nil {
		t.Fatalf("RequeuePending: %v", err)
	}

	if got := queue.submitted(); len(got) != 1 || got[0] != shareCode('C') {
		t.Errorf("submitted %v, want only the undownloaded code", got)
	}
}
