package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spendsnap/internal/api"
	"spendsnap/internal/core"
	"spendsnap/internal/log"
	"spendsnap/internal/view"
)

var ErrSameAccount = errors.New("cannot transfer to the same account")

type AccountView = view.RecordView[core.SavingAccount, core.AccountStatus]

// AccountService manages the saving accounts list. Every successful
// mutation is followed by a re-fetch; the list never shows balances the
// backend has not confirmed.
type AccountService struct {
	client  *api.Client
	actions *view.Actions
	logger  *log.Logger
	view    *AccountView

	mu     sync.Mutex
	filter core.AccountFilter
}

func accountID(a core.SavingAccount) int64 { return a.ID }

func NewAccountService(client *api.Client, pageSize int, logger *log.Logger) *AccountService {
	if logger == nil {
		logger = log.Discard()
	}
	s := &AccountService{
		client:  client,
		actions: view.NewActions(),
		logger:  logger.WithComponent(log.ComponentAccounts),
		view:    view.NewRecordView[core.SavingAccount, core.AccountStatus](pageSize, accountID),
	}
	s.view.SetKey("")
	return s
}

func (s *AccountService) View() *AccountView { return s.view }

func (s *AccountService) Actions() *view.Actions { return s.actions }

func (s *AccountService) Filter() core.AccountFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// SetStatus selects ACTIVE, INACTIVE or every status (""). The list must be
// reloaded afterwards.
func (s *AccountService) SetStatus(status core.AccountStatus) {
	s.mu.Lock()
	s.filter.Status = status
	f := s.filter
	s.mu.Unlock()

	s.view.SetKey(status)
	s.view.SetMatch(f.Match)
}

// SetSearch narrows the list by name without a re-fetch.
func (s *AccountService) SetSearch(q string) {
	s.mu.Lock()
	s.filter.Search = q
	f := s.filter
	s.mu.Unlock()

	s.view.SetMatch(f.Match)
}

// Reload fetches the accounts for the current status. A response
// overtaken by a status change is dropped silently.
func (s *AccountService) Reload(ctx context.Context) error {
	ticket := s.view.Begin()
	accounts, err := s.client.ListAccounts(ctx, ticket.Key)
	if err != nil {
		return err
	}
	if err := s.view.Apply(ticket, accounts); err != nil {
		if IsStale(err) {
			s.logger.DebugContext(ctx, "Dropped stale account list", log.FieldFilter, string(ticket.Key))
			return nil
		}
		return err
	}
	return nil
}

// Totals sums opening balances of the visible accounts per currency.
func (s *AccountService) Totals() map[string]decimal.Decimal {
	return core.TotalsByCurrency(s.view.Visible())
}

func (s *AccountService) Create(ctx context.Context, a core.SavingAccount) (core.SavingAccount, error) {
	created, err := s.client.CreateAccount(ctx, a)
	if err != nil {
		return core.SavingAccount{}, err
	}
	s.logger.InfoContext(ctx, "Account created", log.FieldOperation, log.OpCreate, log.FieldAccountID, created.ID)
	return created, s.Reload(ctx)
}

func (s *AccountService) Patch(ctx context.Context, id int64, patch api.AccountPatch) error {
	return s.mutate(ctx, view.ActionUpdate, log.OpUpdate, id, func(ctx context.Context) error {
		_, err := s.client.PatchAccount(ctx, id, patch)
		return err
	})
}

func (s *AccountService) Archive(ctx context.Context, id int64) error {
	return s.mutate(ctx, view.ActionArchive, log.OpArchive, id, func(ctx context.Context) error {
		_, err := s.client.ArchiveAccount(ctx, id)
		return err
	})
}

// Delete removes an account. The backend refuses accounts with a balance.
func (s *AccountService) Delete(ctx context.Context, id int64) error {
	return s.mutate(ctx, view.ActionDelete, log.OpDelete, id, func(ctx context.Context) error {
		return s.client.DeleteAccount(ctx, id)
	})
}

func (s *AccountService) Deposit(ctx context.Context, id int64, amount decimal.Decimal, memo string) error {
	return s.mutate(ctx, view.ActionDeposit, log.OpDeposit, id, func(ctx context.Context) error {
		_, err := s.client.Deposit(ctx, id, amount, memo)
		return err
	})
}

func (s *AccountService) Withdraw(ctx context.Context, id int64, amount decimal.Decimal, memo string) error {
	return s.mutate(ctx, view.ActionWithdraw, log.OpWithdraw, id, func(ctx context.Context) error {
		_, err := s.client.Withdraw(ctx, id, amount, memo)
		return err
	})
}

// Transfer moves money between two accounts. The returned balances are
// informational; the list is refreshed from the backend.
func (s *AccountService) Transfer(ctx context.Context, t api.Transfer) (api.TransferResult, error) {
	if t.FromID == t.ToID {
		return api.TransferResult{}, ErrSameAccount
	}
	var res api.TransferResult
	err := s.mutate(ctx, view.ActionTransfer, log.OpTransfer, t.FromID, func(ctx context.Context) error {
		var err error
		res, err = s.client.Transfer(ctx, t)
		return err
	})
	return res, err
}

func (s *AccountService) Balance(ctx context.Context, id int64) (decimal.Decimal, error) {
	return s.client.Balance(ctx, id)
}

func (s *AccountService) PreviewInterest(ctx context.Context, id int64, from, to time.Time) (decimal.Decimal, error) {
	return s.client.PreviewInterest(ctx, id, from, to)
}

// AccrueInterest posts interest up to asOf and refreshes the list.
func (s *AccountService) AccrueInterest(ctx context.Context, id int64, asOf time.Time) (decimal.Decimal, error) {
	posted, err := s.client.AccrueInterest(ctx, id, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return posted, s.Reload(ctx)
}

// mutate runs fn as the single pending action of kind on id. On failure
// the list is left as it was; on success it is re-fetched.
func (s *AccountService) mutate(ctx context.Context, kind view.ActionKind, op string, id int64, fn func(context.Context) error) error {
	if err := s.actions.Run(ctx, kind, id, fn); err != nil {
		s.logger.WarnContext(ctx, "Account operation failed",
			log.FieldOperation, op,
			log.FieldAccountID, id,
			log.FieldError, err)
		return err
	}
	s.logger.InfoContext(ctx, "Account operation succeeded",
		log.FieldOperation, op,
		log.FieldAccountID, id)
	return s.Reload(ctx)
}
