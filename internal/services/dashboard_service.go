package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"spendsnap/internal/api"
	"spendsnap/internal/cache"
	"spendsnap/internal/core"
	"spendsnap/internal/log"
	"spendsnap/internal/session"
	"spendsnap/internal/view"
)

// chartFetchLimit bounds concurrent month fetches for chart ranges.
const chartFetchLimit = 4

// RecordKey is the fetch filter of the dashboard's record views.
type RecordKey struct {
	UserID string
	Period core.Period
}

type RecordView = view.RecordView[core.Record, RecordKey]

// DashboardService loads a user's monthly expenses and income into two
// paged views and serves the per-month totals behind the charts.
type DashboardService struct {
	resolver *session.Resolver
	client   *api.Client
	charts   cache.Cache[core.MonthOverview]
	actions  *view.Actions
	logger   *log.Logger

	expenses *RecordView
	incomes  *RecordView

	mu     sync.Mutex
	userID string
}

func recordID(r core.Record) int64 { return r.ID }

func NewDashboardService(resolver *session.Resolver, client *api.Client, charts cache.Cache[core.MonthOverview], pageSize int, logger *log.Logger) *DashboardService {
	if logger == nil {
		logger = log.Discard()
	}
	return &DashboardService{
		resolver: resolver,
		client:   client,
		charts:   charts,
		actions:  view.NewActions(),
		logger:   logger.WithComponent(log.ComponentDashboard),
		expenses: view.NewRecordView[core.Record, RecordKey](pageSize, recordID),
		incomes:  view.NewRecordView[core.Record, RecordKey](pageSize, recordID),
	}
}

func (s *DashboardService) Expenses() *RecordView { return s.expenses }
func (s *DashboardService) Incomes() *RecordView  { return s.incomes }

func (s *DashboardService) View(kind core.Kind) *RecordView {
	if kind == core.KindIncome {
		return s.incomes
	}
	return s.expenses
}

// Load resolves the session and fetches both collections for p. A
// response overtaken by a later Load for another period is dropped and
// reported as view.ErrStaleResponse.
func (s *DashboardService) Load(ctx context.Context, p core.Period) (core.MonthOverview, error) {
	if err := p.Validate(); err != nil {
		return core.MonthOverview{}, err
	}
	id, err := s.resolver.Activate(ctx)
	if err != nil {
		return core.MonthOverview{}, err
	}
	s.setUser(id.UserID)

	key := RecordKey{UserID: id.UserID, Period: p}
	s.expenses.SetKey(key)
	s.incomes.SetKey(key)
	expTicket, incTicket := s.expenses.Begin(), s.incomes.Begin()

	expenses, incomes, err := s.fetchMonth(ctx, id.UserID, p)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to load month",
			log.FieldPeriod, p.String(),
			log.FieldError, err)
		return core.MonthOverview{}, err
	}

	errExp := s.expenses.Apply(expTicket, expenses)
	errInc := s.incomes.Apply(incTicket, incomes)
	if errExp != nil || errInc != nil {
		s.logger.DebugContext(ctx, "Dropped stale month",
			log.FieldPeriod, p.String(),
			log.FieldErrorType, log.ErrorTypeStale)
		return core.MonthOverview{}, view.ErrStaleResponse
	}

	overview := core.Summarize(p, expenses, incomes)
	s.charts.Set(chartKey(id.UserID, p), overview)
	return overview, nil
}

// Overview summarises the collections currently held by the views.
func (s *DashboardService) Overview() core.MonthOverview {
	key := s.expenses.Key()
	return core.Summarize(key.Period, s.expenses.Items(), s.incomes.Items())
}

// Chart returns the totals of the months months ending at end, oldest
// first. Months already summarised are served from the cache.
func (s *DashboardService) Chart(ctx context.Context, end core.Period, months int) ([]core.MonthOverview, error) {
	id, err := s.resolver.Activate(ctx)
	if err != nil {
		return nil, err
	}
	s.setUser(id.UserID)

	periods := end.LastN(months)
	out := make([]core.MonthOverview, len(periods))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chartFetchLimit)
	for i, p := range periods {
		if cached, ok := s.charts.Get(chartKey(id.UserID, p)); ok {
			out[i] = cached
			continue
		}
		g.Go(func() error {
			expenses, incomes, err := s.fetchMonth(gctx, id.UserID, p)
			if err != nil {
				return fmt.Errorf("month %s: %w", p, err)
			}
			out[i] = core.Summarize(p, expenses, incomes)
			s.charts.Set(chartKey(id.UserID, p), out[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Add creates a record for the signed-in user.
func (s *DashboardService) Add(ctx context.Context, kind core.Kind, r core.Record) (core.Record, error) {
	id, err := s.resolver.Activate(ctx)
	if err != nil {
		return core.Record{}, err
	}
	created, err := s.client.AddRecord(ctx, kind, id.UserID, r)
	if err != nil {
		return core.Record{}, err
	}
	s.invalidateCharts(id.UserID)
	return created, nil
}

// Delete removes a record in two phases: it leaves the view at once and
// comes back if the backend does not confirm the delete.
func (s *DashboardService) Delete(ctx context.Context, kind core.Kind, id int64) error {
	v := s.View(kind)
	pending, err := v.BeginRemove(id)
	if err != nil {
		return err
	}

	err = s.actions.Run(ctx, deleteAction(kind), id, func(ctx context.Context) error {
		return s.client.DeleteRecord(ctx, kind, id)
	})
	if err != nil {
		pending.Rollback()
		s.logger.WarnContext(ctx, "Delete failed, record restored",
			log.FieldOperation, log.OpDelete,
			log.FieldRecordID, id,
			log.FieldError, err)
		return err
	}

	pending.Commit()
	s.invalidateCharts(s.user())
	s.logger.InfoContext(ctx, "Record deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldRecordID, id,
		"kind", kind)
	return nil
}

func (s *DashboardService) fetchMonth(ctx context.Context, userID string, p core.Period) (expenses, incomes []core.Record, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		expenses, err = s.client.MonthlyExpenses(gctx, userID, p)
		return err
	})
	g.Go(func() error {
		var err error
		incomes, err = s.client.MonthlyIncome(gctx, userID, p)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return expenses, incomes, nil
}

func (s *DashboardService) invalidateCharts(userID string) {
	if userID == "" {
		return
	}
	s.charts.DeletePrefix(userID + "/")
}

func (s *DashboardService) setUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != "" && s.userID != id {
		// Another user signed in on this context.
		s.charts.Purge()
	}
	s.userID = id
}

func (s *DashboardService) user() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func chartKey(userID string, p core.Period) string {
	return userID + "/" + p.String()
}

func deleteAction(kind core.Kind) view.ActionKind {
	return view.ActionKind(string(view.ActionDelete) + "_" + string(kind))
}

// IsStale reports whether err is a dropped stale response, which callers
// ignore.
func IsStale(err error) bool {
	return errors.Is(err, view.ErrStaleResponse)
}
