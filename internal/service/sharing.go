package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"csgo-tracker/internal/api"
	"csgo-tracker/internal/constants"
	"csgo-tracker/internal/domain"
	"csgo-tracker/internal/repository"
	"csgo-tracker/internal/sharecode"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// NextCoder walks an account's sharing-code chain one step.
type NextCoder interface {
	NextCode(ctx context.Context, steamID64, authCode, knownCode string) (string, error)
}

// JobSubmitter queues a sharing code for download.
type JobSubmitter interface {
	Submit(code string)
}

// SharingService owns linked accounts and the daily sweep that follows
// each account's sharing-code chain forward.
type SharingService struct {
	accounts *repository.AccountRepository
	codes    *repository.MatchCodeRepository
	steam    NextCoder
	jobs     JobSubmitter
	logger   zerolog.Logger

	stepDelay time.Duration
}

func NewSharingService(accounts *repository.AccountRepository, codes *repository.MatchCodeRepository, steam NextCoder, jobs JobSubmitter, logger zerolog.Logger) *SharingService {
	return &SharingService{
		accounts:  accounts,
		codes:     codes,
		steam:     steam,
		jobs:      jobs,
		logger:    logger,
		stepDelay: constants.ChainStepDelay,
	}
}

// ErrInvalidCode is returned when a sharing code fails checksum-free
// format validation before it is ever persisted.
var ErrInvalidCode = errors.New("invalid sharing code")

// LinkAccount registers (or re-registers) a sharing account with its
// oldest known code and immediately chains forward from it.
// Re-linking clears a previous authentication failure.
func (s *SharingService) LinkAccount(ctx context.Context, playerID, steamID64, authCode, knownCode, profileLink string) error {
	if !sharecode.Valid(knownCode) {
		return ErrInvalidCode
	}
	acc := &domain.SharingAccount{
		ID:           playerID,
		SteamID64:    steamID64,
		AuthCode:     authCode,
		ProfileLink:  profileLink,
		RegisteredAt: time.Now(),
	}
	if err := s.accounts.Upsert(ctx, acc); err != nil {
		return fmt.Errorf("failed to store sharing account: %w", err)
	}

	inserted, err := s.codes.Save(ctx, playerID, knownCode)
	if err != nil {
		return fmt.Errorf("failed to store known code: %w", err)
	}
	if inserted {
		s.jobs.Submit(knownCode)
	}

	// Chain forward off the request path; a long backlog should not
	// hold the link response captive.
	go func() {
		if err := s.FetchChain(context.Background(), *acc); err != nil {
			s.logger.Warn().Err(err).Str("player", playerID).Msg("initial chain fetch failed")
		}
	}()

	return nil
}

// FetchChain pulls sharing codes for one account until the upstream
// reports no newer code. Every new code is persisted and queued for
// download. Consecutive requests are spaced by the step delay to stay
// under the upstream rate limit.
func (s *SharingService) FetchChain(ctx context.Context, acc domain.SharingAccount) error {
	cursor, err := s.codes.Latest(ctx, acc.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load chain cursor: %w", err)
	}

	for {
		callCtx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
		next, err := s.steam.NextCode(callCtx, acc.SteamID64, acc.AuthCode, cursor)
		cancel()
		if errors.Is(err, api.ErrNoNewerCode) {
			return nil
		}
		if errors.Is(err, api.ErrAuthDenied) {
			s.logger.Warn().Str("player", acc.ID).Msg("sharing auth denied, flagging account")
			if ferr := s.accounts.SetAuthFailed(ctx, acc.ID); ferr != nil {
				s.logger.Error().Err(ferr).Str("player", acc.ID).Msg("failed to flag account")
			}
			return err
		}
		if err != nil {
			return fmt.Errorf("failed to fetch next code: %w", err)
		}

		decoded, err := sharecode.Decode(next)
		if err != nil {
			return fmt.Errorf("upstream returned malformed code %q: %w", next, err)
		}

		inserted, err := s.codes.Save(ctx, acc.ID, next)
		if err != nil {
			return fmt.Errorf("failed to store code: %w", err)
		}
		if inserted {
			s.logger.Debug().
				Str("player", acc.ID).
				Uint64("match", decoded.MatchID).
				Msg("new sharing code discovered")
			s.jobs.Submit(next)
		}
		cursor = next

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.stepDelay):
		}
	}
}

// RunSweep chains every linked account forward once. Accounts flagged
// for auth failure are excluded by the repository. Per-account
// failures are logged and do not stop the sweep.
func (s *SharingService) RunSweep(ctx context.Context) error {
	sweepID, err := gonanoid.New()
	if err != nil {
		return err
	}
	log := s.logger.With().Str("sweep", sweepID).Logger()

	accounts, err := s.accounts.Linked(ctx)
	if err != nil {
		return fmt.Errorf("failed to list linked accounts: %w", err)
	}
	log.Info().Int("accounts", len(accounts)).Msg("sweep started")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.SweepFanout)
	for _, acc := range accounts {
		acc := acc
		g.Go(func() error {
			if err := s.FetchChain(ctx, acc); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Str("player", acc.ID).Msg("chain fetch failed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().Msg("sweep finished")
	return nil
}

// RunSweeper repeats the sweep on a fixed interval until ctx is done.
func (s *SharingService) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(constants.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunSweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// RequeuePending resubmits every saved code that no worker ever
// dispatched, recovering jobs lost to a restart.
func (s *SharingService) RequeuePending(ctx context.Context) error {
	pending, err := s.codes.Pending(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending codes: %w", err)
	}
	for _, code := range pending {
		s.jobs.Submit(code)
	}
	if len(pending) > 0 {
		s.logger.Info().Int("codes", len(pending)).Msg("requeued pending codes")
	}
	return nil
}
