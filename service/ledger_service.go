package service

import (
	"context"

	"chitfund/events"
	"chitfund/models"
)

type ledgerService struct {
	uowFactory UnitOfWorkFactory
	graph      ParticipantGraph
}

// NewLedgerService creates a new ledger service
func NewLedgerService(uowFactory UnitOfWorkFactory, graph ParticipantGraph) LedgerService {
	return &ledgerService{
		uowFactory: uowFactory,
		graph:      graph,
	}
}

// AddFunds credits the user's account and returns the new balance. The credit
// and its transfer row commit together.
func (s *ledgerService) AddFunds(ctx context.Context, username string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, NewError(KindInvalidAmount, "deposit amount must be positive, got %d", amount)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, WrapStoreError(err, "failed to begin transaction")
	}
	defer uow.Rollback() // No-op if already committed

	account, err := uow.LedgerRepository().GetAccount(ctx, username)
	if err != nil {
		return 0, WrapStoreError(err, "failed to get account for %q", username)
	}
	if account == nil {
		return 0, NewError(KindNotFound, "account %q not found", username)
	}

	newBalance, err := uow.LedgerRepository().Credit(ctx, username, amount)
	if err != nil {
		return 0, WrapStoreError(err, "failed to credit account %q", username)
	}

	transfer := &models.Transfer{
		FromAccount: models.SystemAccount,
		ToAccount:   username,
		Amount:      amount,
		Description: "funds deposit",
	}
	if err := uow.LedgerRepository().RecordTransfer(ctx, transfer); err != nil {
		return 0, WrapStoreError(err, "failed to record deposit transfer")
	}

	uow.EventBus().Publish(events.FundsAddedEvent{
		Username:   username,
		Amount:     amount,
		NewBalance: newBalance,
	})

	if err := uow.Commit(); err != nil {
		return 0, WrapStoreError(err, "failed to commit transaction")
	}

	return newBalance, nil
}

// GetBalance returns the account balance
func (s *ledgerService) GetBalance(ctx context.Context, username string) (int64, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, WrapStoreError(err, "failed to begin transaction")
	}
	defer uow.Rollback()

	account, err := uow.LedgerRepository().GetAccount(ctx, username)
	if err != nil {
		return 0, WrapStoreError(err, "failed to get account for %q", username)
	}
	if account == nil {
		return 0, NewError(KindNotFound, "account %q not found", username)
	}

	return account.Balance, nil
}

// GetTransferHistory returns transfers touching the account, newest first
func (s *ledgerService) GetTransferHistory(ctx context.Context, username string) ([]*models.Transfer, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, WrapStoreError(err, "failed to begin transaction")
	}
	defer uow.Rollback()

	account, err := uow.LedgerRepository().GetAccount(ctx, username)
	if err != nil {
		return nil, WrapStoreError(err, "failed to get account for %q", username)
	}
	if account == nil {
		return nil, NewError(KindNotFound, "account %q not found", username)
	}

	transfers, err := uow.LedgerRepository().GetTransfersByAccount(ctx, username)
	if err != nil {
		return nil, WrapStoreError(err, "failed to get transfer history for %q", username)
	}

	return transfers, nil
}

// ProvisionAccount creates the ledger account and graph node for a new user.
// Both writes are idempotent-safe: an existing account short-circuits, and the
// graph write is a merge.
func (s *ledgerService) ProvisionAccount(ctx context.Context, username string) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return WrapStoreError(err, "failed to begin transaction")
	}
	defer uow.Rollback()

	account, err := uow.LedgerRepository().GetAccount(ctx, username)
	if err != nil {
		return WrapStoreError(err, "failed to get account for %q", username)
	}
	if account == nil {
		if _, err := uow.LedgerRepository().CreateAccount(ctx, username); err != nil {
			return WrapStoreError(err, "failed to create account for %q", username)
		}
	}

	if err := uow.Commit(); err != nil {
		return WrapStoreError(err, "failed to commit transaction")
	}

	if err := s.graph.CreateUser(ctx, username); err != nil {
		return WrapStoreError(err, "failed to create graph node for %q", username)
	}

	return nil
}
