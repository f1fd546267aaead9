package service

import (
	"context"
	"errors"
	"fmt"

	"mercadinho/backend/internal/cache"
	"mercadinho/backend/internal/domain"
	"mercadinho/backend/internal/reconcile"
	"mercadinho/backend/internal/store"
)

// OpenRegister starts a new cash session. It fails with store.ErrConflict
// while another session is open.
func (s *Service) OpenRegister(ctx context.Context, req domain.OpenRegisterRequest) (domain.CashRegisterSession, error) {
	if err := s.check(req); err != nil {
		return domain.CashRegisterSession{}, err
	}

	session, err := s.repo.OpenRegisterSession(ctx, req.InitialFloatCents, s.timestamp())
	if err != nil {
		return domain.CashRegisterSession{}, fmt.Errorf("open register: %w", err)
	}

	s.invalidate(ctx, cache.EntityRegisterSessions)
	s.metrics.RegisterEvent("opened")
	s.log.Zerolog(ctx).Info().
		Int64("session_id", session.ID).
		Int64("initial_float_cents", session.InitialFloatCents).
		Msg("register opened")
	return *session, nil
}

// CloseRegister closes the open session with the balance the operator
// counted. The balance is stored as given; use SessionReport to compare it
// with the recorded sales.
func (s *Service) CloseRegister(ctx context.Context, req domain.CloseRegisterRequest) (domain.ClosingRecord, error) {
	if err := s.check(req); err != nil {
		return domain.ClosingRecord{}, err
	}

	session, record, err := s.repo.CloseRegisterSession(ctx, req.SessionID, req.FinalBalanceCents, s.timestamp())
	if err != nil {
		return domain.ClosingRecord{}, fmt.Errorf("close register: %w", err)
	}

	s.invalidate(ctx, cache.EntityRegisterSessions, cache.EntityClosingRecords)
	s.metrics.RegisterEvent("closed")
	s.log.Zerolog(ctx).Info().
		Int64("session_id", session.ID).
		Int64("final_balance_cents", record.FinalBalanceCents).
		Msg("register closed")
	return *record, nil
}

// GetOpenRegisterSession returns None when no session is open.
func (s *Service) GetOpenRegisterSession(ctx context.Context) (domain.Optional[domain.CashRegisterSession], error) {
	return readThrough(ctx, s, cache.EntityRegisterSessions, cache.Key("open"), func(ctx context.Context) (domain.Optional[domain.CashRegisterSession], error) {
		session, err := s.repo.GetOpenRegisterSession(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return domain.None[domain.CashRegisterSession](), nil
		}
		if err != nil {
			return domain.None[domain.CashRegisterSession](), err
		}
		return domain.Some(*session), nil
	})
}

func (s *Service) ListRegisterSessions(ctx context.Context) ([]domain.CashRegisterSession, error) {
	return readThrough(ctx, s, cache.EntityRegisterSessions, cache.Key("all"), s.repo.ListRegisterSessions)
}

func (s *Service) ListClosingRecords(ctx context.Context) ([]domain.ClosingRecord, error) {
	return readThrough(ctx, s, cache.EntityClosingRecords, cache.Key("all"), s.repo.ListClosingRecords)
}

// SessionReport summarises the active sales of one session next to its float
// and, once closed, the declared final balance.
func (s *Service) SessionReport(ctx context.Context, sessionID int64) (domain.SessionReport, error) {
	session, err := readThrough(ctx, s, cache.EntityRegisterSessions, cache.Key("id", sessionID), func(ctx context.Context) (domain.CashRegisterSession, error) {
		found, err := s.repo.GetRegisterSession(ctx, sessionID)
		if err != nil {
			return domain.CashRegisterSession{}, err
		}
		return *found, nil
	})
	if err != nil {
		return domain.SessionReport{}, fmt.Errorf("register session %d: %w", sessionID, err)
	}

	sales, err := s.GetActiveSales(ctx)
	if err != nil {
		return domain.SessionReport{}, err
	}
	return reconcile.SummarizeSession(session, sales), nil
}
