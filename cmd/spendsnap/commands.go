package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"spendsnap/internal/api"
	"spendsnap/internal/broadcast"
	"spendsnap/internal/core"
	"spendsnap/internal/log"
	"spendsnap/internal/nav"
)

var errUsage = errors.New("invalid arguments")

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// periodFlags registers -month and -year defaulting to the current month.
func periodFlags(fs *flag.FlagSet) func() (core.Period, error) {
	now := core.CurrentPeriod(time.Now())
	month := fs.Int("month", now.Month, "month (1-12)")
	year := fs.Int("year", now.Year, "year")
	return func() (core.Period, error) {
		p := core.Period{Year: *year, Month: *month}
		return p, p.Validate()
	}
}

func credentials(fs *flag.FlagSet, args []string) (api.Credentials, error) {
	user := fs.String("u", "", "username")
	pass := fs.String("p", "", "password (defaults to $SPENDSNAP_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return api.Credentials{}, err
	}
	creds := api.Credentials{Username: strings.TrimSpace(*user), Password: *pass}
	if creds.Password == "" {
		creds.Password = os.Getenv("SPENDSNAP_PASSWORD")
	}
	if creds.Username == "" || creds.Password == "" {
		return api.Credentials{}, fmt.Errorf("%w: username and password are required", errUsage)
	}
	return creds, nil
}

func runLogin(ctx context.Context, a *app, args []string) error {
	creds, err := credentials(newFlags("login"), args)
	if err != nil {
		return err
	}
	a.history.Push(nav.PathLogin)
	s, err := a.auth.Login(ctx, creds)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s\n", s.Subject)
	return nil
}

func runLogout(ctx context.Context, a *app, _ []string) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func runRegister(ctx context.Context, a *app, args []string) error {
	creds, err := credentials(newFlags("register"), args)
	if err != nil {
		return err
	}
	a.history.Push(nav.PathRegister)
	u, err := a.auth.Register(ctx, creds)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Registered %s\n", u.UserName)
	return nil
}

func runWhoami(ctx context.Context, a *app, _ []string) error {
	id, err := a.activate(ctx, nav.PathDashboard)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (user id %s)\n", id.Subject, id.UserID)
	return nil
}

func runRecords(kind core.Kind) func(context.Context, *app, []string) error {
	return func(ctx context.Context, a *app, args []string) error {
		fs := newFlags(string(kind))
		page := fs.Int("page", 1, "page number")
		query := fs.String("q", "", "filter by description or category")
		period := periodFlags(fs)
		if err := fs.Parse(args); err != nil {
			return err
		}
		p, err := period()
		if err != nil {
			return err
		}
		if err := a.open(ctx, nav.PathDashboard); err != nil {
			return err
		}
		overview, err := a.dashboard.Load(ctx, p)
		if err != nil {
			return err
		}

		v := a.dashboard.View(kind)
		if q := strings.ToLower(strings.TrimSpace(*query)); q != "" {
			v.SetMatch(func(r core.Record) bool {
				return strings.Contains(strings.ToLower(r.Description), q) ||
					strings.Contains(strings.ToLower(r.Category), q)
			})
		}
		v.SetPage(*page)

		w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDATE\tCATEGORY\tAMOUNT\tDESCRIPTION")
		for _, r := range v.Page() {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Date, r.Category, a.masking.FormatAmount(r.Amount), r.Description)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		pg := v.Pager()
		fmt.Fprintf(a.out, "Page %d of %d (%d records)\n", pg.Page(), pg.Pages(), pg.Total())
		fmt.Fprintf(a.out, "%s: spent %s, earned %s, balance %s\n", overview.Period,
			a.masking.FormatAmount(overview.TotalSpent),
			a.masking.FormatAmount(overview.TotalIncome),
			a.masking.FormatAmount(overview.Balance))
		return nil
	}
}

func runAdd(kind core.Kind) func(context.Context, *app, []string) error {
	return func(ctx context.Context, a *app, args []string) error {
		fs := newFlags("add-" + string(kind))
		amount := fs.String("amount", "", "amount")
		category := fs.String("category", "", "category")
		date := fs.String("date", time.Now().Format(time.DateOnly), "date (YYYY-MM-DD)")
		desc := fs.String("d", "", "description")
		if err := fs.Parse(args); err != nil {
			return err
		}
		amt, err := core.ParseAmount(*amount)
		if err != nil {
			return err
		}
		d, err := core.ParseDate(*date)
		if err != nil {
			return err
		}
		path := nav.PathAddExpense
		if kind == core.KindIncome {
			path = nav.PathAddIncome
		}
		if err := a.open(ctx, path); err != nil {
			return err
		}
		r, err := a.dashboard.Add(ctx, kind, core.Record{
			Amount:      amt,
			Category:    *category,
			Date:        d,
			Description: *desc,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Added %s\n", r.Label())
		return nil
	}
}

func runDelete(kind core.Kind) func(context.Context, *app, []string) error {
	return func(ctx context.Context, a *app, args []string) error {
		fs := newFlags("delete-" + string(kind))
		period := periodFlags(fs)
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("%w: expected one record id", errUsage)
		}
		id, err := parseID(fs.Arg(0))
		if err != nil {
			return err
		}
		p, err := period()
		if err != nil {
			return err
		}
		if err := a.open(ctx, nav.PathDashboard); err != nil {
			return err
		}
		if _, err := a.dashboard.Load(ctx, p); err != nil {
			return err
		}
		if err := a.dashboard.Delete(ctx, kind, id); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted %s %d\n", kind, id)
		return nil
	}
}

func runChart(ctx context.Context, a *app, args []string) error {
	fs := newFlags("chart")
	months := fs.Int("months", 6, "number of months")
	period := periodFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	end, err := period()
	if err != nil {
		return err
	}
	if err := a.open(ctx, nav.PathDashboard); err != nil {
		return err
	}
	series, err := a.dashboard.Chart(ctx, end, *months)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MONTH\tSPENT\tEARNED\tBALANCE")
	for _, m := range series {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Period,
			a.masking.FormatAmount(m.TotalSpent),
			a.masking.FormatAmount(m.TotalIncome),
			a.masking.FormatAmount(m.Balance))
	}
	return w.Flush()
}

func runAccounts(ctx context.Context, a *app, args []string) error {
	fs := newFlags("accounts")
	status := fs.String("status", "ACTIVE", "ACTIVE, INACTIVE or ALL")
	query := fs.String("q", "", "filter by name")
	page := fs.Int("page", 1, "page number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	st, err := core.ParseAccountStatus(*status)
	if err != nil {
		return err
	}
	if _, err := a.activate(ctx, nav.PathSavingAccounts); err != nil {
		return err
	}
	a.accounts.SetStatus(st)
	a.accounts.SetSearch(*query)
	if err := a.accounts.Reload(ctx); err != nil {
		return err
	}

	v := a.accounts.View()
	v.SetPage(*page)
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCURRENCY\tSTATUS\tBALANCE\tAPR")
	for _, acc := range v.Page() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", acc.ID, acc.Name, acc.Currency, acc.Status,
			a.masking.FormatAmount(acc.OpeningBalance), acc.InterestAPR.String())
	}
	if err := w.Flush(); err != nil {
		return err
	}
	pg := v.Pager()
	fmt.Fprintf(a.out, "Page %d of %d (%d accounts)\n", pg.Page(), pg.Pages(), pg.Total())
	totals := a.accounts.Totals()
	for _, ccy := range currencies(totals) {
		fmt.Fprintf(a.out, "Total %s: %s\n", ccy, a.masking.FormatAmount(totals[ccy]))
	}
	return nil
}

func runCreateAccount(ctx context.Context, a *app, args []string) error {
	fs := newFlags("create-account")
	name := fs.String("name", "", "account name")
	currency := fs.String("currency", "", "ISO currency code")
	apr := fs.String("apr", "0", "interest APR between 0 and 1")
	opening := fs.String("opening", "0", "opening balance")
	if err := fs.Parse(args); err != nil {
		return err
	}
	acc := core.NewSavingAccount(*name, *currency)
	var err error
	if acc.InterestAPR, err = decimal.NewFromString(*apr); err != nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidAPR, err)
	}
	if acc.OpeningBalance, err = decimal.NewFromString(*opening); err != nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidAmount, err)
	}
	if _, err := a.activate(ctx, nav.PathSavingAccounts); err != nil {
		return err
	}
	created, err := a.accounts.Create(ctx, acc)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created account %d (%s)\n", created.ID, created.Name)
	return nil
}

type moveKind int

const (
	moveDeposit moveKind = iota
	moveWithdraw
)

func runMove(kind moveKind) func(context.Context, *app, []string) error {
	return func(ctx context.Context, a *app, args []string) error {
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("%w: expected ID AMOUNT [MEMO]", errUsage)
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		amount, err := core.ParseAmount(args[1])
		if err != nil {
			return err
		}
		var memo string
		if len(args) == 3 {
			memo = args[2]
		}
		if _, err := a.activate(ctx, nav.PathSavingAccounts); err != nil {
			return err
		}
		if kind == moveWithdraw {
			err = a.accounts.Withdraw(ctx, id, amount, memo)
		} else {
			err = a.accounts.Deposit(ctx, id, amount, memo)
		}
		if err != nil {
			return err
		}
		return printBalance(ctx, a, id)
	}
}

func runTransfer(ctx context.Context, a *app, args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return fmt.Errorf("%w: expected FROM TO AMOUNT [MEMO]", errUsage)
	}
	from, err := parseID(args[0])
	if err != nil {
		return err
	}
	to, err := parseID(args[1])
	if err != nil {
		return err
	}
	amount, err := core.ParseAmount(args[2])
	if err != nil {
		return err
	}
	t := api.Transfer{FromID: from, ToID: to, Amount: amount}
	if len(args) == 4 {
		t.Memo = args[3]
	}
	if _, err := a.activate(ctx, nav.PathSavingAccounts); err != nil {
		return err
	}
	if _, err := a.accounts.Transfer(ctx, t); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Transferred %s from %d to %d\n", a.masking.FormatAmount(amount), from, to)
	return nil
}

func runArchive(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: expected one account id", errUsage)
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if _, err := a.activate(ctx, nav.PathSavingAccounts); err != nil {
		return err
	}
	if err := a.accounts.Archive(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Archived account %d\n", id)
	return nil
}

func runMask(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: expected on, off or toggle", errUsage)
	}
	var err error
	switch args[0] {
	case "on":
		err = a.masking.Set(ctx, true)
	case "off":
		err = a.masking.Set(ctx, false)
	case "toggle":
		_, err = a.masking.Toggle(ctx)
	default:
		return fmt.Errorf("%w: expected on, off or toggle", errUsage)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Amount masking: %s\n", onOff(a.masking.Masked()))
	return nil
}

// runWatch prints broadcasts from other instances until interrupted.
func runWatch(ctx context.Context, a *app, _ []string) error {
	a.masking.OnChange(func(masked bool) {
		fmt.Fprintf(a.out, "Amount masking: %s\n", onOff(masked))
	})
	stop := broadcast.Subscribe(a.sc.Bus, broadcast.SessionInvalidated, func(_ context.Context, reason string, msg broadcast.Message) {
		if msg.Origin == a.sc.Bus.Origin() {
			return
		}
		fmt.Fprintf(a.out, "Session invalidated: %s\n", reason)
	})
	defer stop()

	log.FromContext(ctx).InfoContext(ctx, "Watching broadcasts", log.FieldOrigin, a.sc.Bus.Origin())
	fmt.Fprintln(a.out, "Watching for changes from other instances; press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}

func printBalance(ctx context.Context, a *app, id int64) error {
	balance, err := a.accounts.Balance(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Account %d balance: %s\n", id, a.masking.FormatAmount(balance))
	return nil
}

// currencies returns the currency codes of totals in alphabetical order.
func currencies(totals map[string]decimal.Decimal) []string {
	return slices.Sorted(maps.Keys(totals))
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", errUsage, s)
	}
	return id, nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
