package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"spendsnap/internal/core"
	"spendsnap/internal/gateway"
	"spendsnap/internal/nav"
	"spendsnap/internal/session"
	"spendsnap/internal/storage"
)

func newClient(t *testing.T, router *mux.Router) (*Client, *session.Store) {
	t.Helper()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	store := session.NewStore(storage.NewMemoryKV())
	gw, err := gateway.New(gateway.Config{BaseURL: srv.URL}, store, nav.NewHistory(nav.PathDashboard))
	if err != nil {
		t.Fatalf("gateway.New() error = %v", err)
	}
	return New(gw), store
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		t.Errorf("decode request body: %v", err)
	}
	return body
}

func TestLogin_ResponseShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{"raw token", "abc.def.ghi", "abc.def.ghi", nil},
		{"bearer raw token", "Bearer abc.def.ghi", "abc.def.ghi", nil},
		{"json string", `"Bearer abc.def.ghi"`, "abc.def.ghi", nil},
		{"wrapped", `{"token":"abc.def.ghi"}`, "abc.def.ghi", nil},
		{"wrapped bearer", `{"token":"Bearer abc.def.ghi"}`, "abc.def.ghi", nil},
		{"empty", "", "", ErrNoToken},
		{"wrapped empty", `{"token":""}`, "", ErrNoToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := mux.NewRouter()
			router.HandleFunc("/user/login", func(w http.ResponseWriter, r *http.Request) {
				body := decodeBody(t, r)
				if body["username"] != "joe" || body["password"] != "secret" {
					t.Errorf("login body = %v", body)
				}
				io.WriteString(w, tt.body)
			}).Methods(http.MethodPost)
			c, _ := newClient(t, router)

			got, err := c.Login(context.Background(), Credentials{Username: "joe", Password: "secret"})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Login() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Login() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogin_RejectedCredentials(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/user/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "Bad credentials")
	}).Methods(http.MethodPost)
	c, _ := newClient(t, router)

	_, err := c.Login(context.Background(), Credentials{Username: "joe", Password: "nope"})
	if !errors.Is(err, gateway.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if gateway.Message(err) != "Bad credentials" {
		t.Errorf("Message() = %q", gateway.Message(err))
	}
}

func TestResolveUserID(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"numeric id", `{"id":42,"userName":"joe"}`, "42"},
		{"string id", `{"id":"42"}`, "42"},
		{"userId fallback", `{"userId":7}`, "7"},
		{"null id", `{"id":null,"userId":"9"}`, "9"},
		{"missing", `{"userName":"joe"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := mux.NewRouter()
			router.HandleFunc("/user/getUserByName", func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("name") != "joe" {
					t.Errorf("name = %q", r.URL.Query().Get("name"))
				}
				io.WriteString(w, tt.body)
			}).Methods(http.MethodGet)
			c, _ := newClient(t, router)

			got, err := c.ResolveUserID(context.Background(), "joe")
			if err != nil {
				t.Fatalf("ResolveUserID() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveUserID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMonthlyRecords(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/expenses/getMonthlyExpensesByUser/{userId}/{month}/{year}", func(w http.ResponseWriter, r *http.Request) {
		v := mux.Vars(r)
		if v["userId"] != "42" || v["month"] != "3" || v["year"] != "2024" {
			t.Errorf("vars = %v", v)
		}
		if r.Header.Get("Authorization") != "Bearer a.b.c" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		io.WriteString(w, `[{"id":1,"amount":12.5,"description":"Lunch","date":"2024-03-05","category":"Food","userId":42},
			{"id":2,"amount":"3.10","date":"2024-03-06","category":"Coffee"}]`)
	}).Methods(http.MethodGet)
	router.HandleFunc("/income/getMonthlyIncomeByUser/{userId}/{month}/{year}", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `null`)
	}).Methods(http.MethodGet)

	c, store := newClient(t, router)
	store.Set(context.Background(), "Bearer a.b.c")
	p := core.Period{Year: 2024, Month: 3}

	expenses, err := c.MonthlyExpenses(context.Background(), "42", p)
	if err != nil {
		t.Fatalf("MonthlyExpenses() error = %v", err)
	}
	if len(expenses) != 2 {
		t.Fatalf("got %d expenses, want 2", len(expenses))
	}
	if !expenses[0].Amount.Equal(decimal.RequireFromString("12.5")) || expenses[0].Date.String() != "2024-03-05" {
		t.Errorf("first expense = %+v", expenses[0])
	}
	if !expenses[1].Amount.Equal(decimal.RequireFromString("3.1")) {
		t.Errorf("second amount = %s", expenses[1].Amount)
	}

	incomes, err := c.MonthlyIncome(context.Background(), "42", p)
	if err != nil {
		t.Fatalf("MonthlyIncome() error = %v", err)
	}
	if len(incomes) != 0 {
		t.Errorf("got %d incomes, want 0", len(incomes))
	}

	if _, err := c.MonthlyExpenses(context.Background(), "42", core.Period{Year: 2024, Month: 13}); !errors.Is(err, core.ErrInvalidMonth) {
		t.Errorf("invalid period error = %v", err)
	}
}

func TestAddRecord(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/income/addIncome", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		if body["amount"] != json.Number("1500") {
			t.Errorf("amount = %#v, want number 1500", body["amount"])
		}
		if body["userId"] != json.Number("42") {
			t.Errorf("userId = %#v", body["userId"])
		}
		if body["date"] != "2024-03-01" || body["category"] != "Salary" {
			t.Errorf("body = %v", body)
		}
		io.WriteString(w, `{"id":10,"amount":1500,"date":"2024-03-01","category":"Salary"}`)
	}).Methods(http.MethodPost)
	c, _ := newClient(t, router)

	r := core.Record{
		Amount:   decimal.RequireFromString("1500.00"),
		Date:     core.NewDate(2024, 3, 1),
		Category: "Salary",
	}
	got, err := c.AddRecord(context.Background(), core.KindIncome, "42", r)
	if err != nil {
		t.Fatalf("AddRecord() error = %v", err)
	}
	if got.ID != 10 {
		t.Errorf("ID = %d, want 10", got.ID)
	}

	r.Category = "Groceries"
	if _, err := c.AddRecord(context.Background(), core.KindIncome, "42", r); !errors.Is(err, core.ErrInvalidCategory) {
		t.Errorf("invalid category error = %v", err)
	}
}

func TestDeleteRecord_Paths(t *testing.T) {
	var hits []string
	router := mux.NewRouter()
	router.HandleFunc("/expenses/delete/{id}", func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, "expense "+mux.Vars(r)["id"])
	}).Methods(http.MethodDelete)
	router.HandleFunc("/income/{id}", func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, "income "+mux.Vars(r)["id"])
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)
	c, _ := newClient(t, router)

	if err := c.DeleteRecord(context.Background(), core.KindExpense, 5); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteRecord(context.Background(), core.KindIncome, 6); err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(hits) != "[expense 5 income 6]" {
		t.Errorf("hits = %v", hits)
	}
}

func TestListAccounts_StatusQuery(t *testing.T) {
	var status []string
	router := mux.NewRouter()
	router.HandleFunc("/savingAccount", func(w http.ResponseWriter, r *http.Request) {
		status = append(status, r.URL.Query().Get("status"))
		io.WriteString(w, `[{"id":1,"name":"Rainy day","currency":"EUR","status":"ACTIVE","opening_balance":100,"interestApr":0.02}]`)
	}).Methods(http.MethodGet)
	c, _ := newClient(t, router)

	accounts, err := c.ListAccounts(context.Background(), core.StatusInactive)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ListAccounts(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(status) != "[INACTIVE ]" {
		t.Errorf("status queries = %q", status)
	}
	if len(accounts) != 1 || accounts[0].Name != "Rainy day" || !accounts[0].InterestAPR.Equal(decimal.RequireFromString("0.02")) {
		t.Errorf("accounts = %+v", accounts)
	}
}

func TestMoneyMovements(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/savingAccount/{id}/{action:deposit|withdraw}", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		if body["amount"] != json.Number("25.5") || body["memo"] != "gift" {
			t.Errorf("body = %v", body)
		}
		fmt.Fprintf(w, `{"id":%s,"name":"A","currency":"EUR","status":"ACTIVE"}`, mux.Vars(r)["id"])
	}).Methods(http.MethodPost)
	router.HandleFunc("/savingAccount/transfer", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		if body["fromId"] != json.Number("1") || body["toId"] != json.Number("2") {
			t.Errorf("body = %v", body)
		}
		io.WriteString(w, `{"fromId":1,"toId":2,"fromBalance":74.5,"toBalance":"125.50"}`)
	}).Methods(http.MethodPost)
	c, _ := newClient(t, router)
	ctx := context.Background()
	amount := decimal.RequireFromString("25.5")

	acc, err := c.Deposit(ctx, 3, amount, "gift")
	if err != nil || acc.ID != 3 {
		t.Fatalf("Deposit() = %+v, %v", acc, err)
	}
	if _, err := c.Withdraw(ctx, 3, amount, "gift"); err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	if _, err := c.Withdraw(ctx, 3, decimal.Zero, ""); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("zero withdraw error = %v", err)
	}

	res, err := c.Transfer(ctx, Transfer{FromID: 1, ToID: 2, Amount: decimal.RequireFromString("10")})
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if !res.FromBalance.Equal(decimal.RequireFromString("74.5")) || !res.ToBalance.Equal(decimal.RequireFromString("125.5")) {
		t.Errorf("Transfer() = %+v", res)
	}
}

func TestTransfer_CurrencyMismatchSurfacesMessage(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/savingAccount/transfer", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"message":"Currency mismatch between accounts"}`)
	}).Methods(http.MethodPost)
	c, _ := newClient(t, router)

	_, err := c.Transfer(context.Background(), Transfer{FromID: 1, ToID: 2, Amount: decimal.NewFromInt(5)})
	if !errors.Is(err, gateway.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if got := gateway.Message(err); got != "Currency mismatch between accounts" {
		t.Errorf("Message() = %q", got)
	}
}

func TestAccountLifecycle(t *testing.T) {
	var calls []string
	router := mux.NewRouter()
	record := func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		io.WriteString(w, `{"id":1,"name":"A","currency":"EUR","status":"ACTIVE"}`)
	}
	router.HandleFunc("/savingAccount", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		if body["opening_balance"] != json.Number("50") || body["currency"] != "EUR" {
			t.Errorf("create body = %v", body)
		}
		record(w, r)
	}).Methods(http.MethodPost)
	router.HandleFunc("/savingAccount/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			body := decodeBody(t, r)
			if _, ok := body["currency"]; ok {
				t.Errorf("patch sent unset currency: %v", body)
			}
			if body["name"] != "B" {
				t.Errorf("patch body = %v", body)
			}
		}
		record(w, r)
	}).Methods(http.MethodGet, http.MethodPatch, http.MethodDelete)
	router.HandleFunc("/savingAccount/{id}/{action:archive|snapshot}", record).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/savingAccount/{id}/balance", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"balance":50.25}`)
	}).Methods(http.MethodGet)
	router.HandleFunc("/savingAccount/{id}/accrue-interest", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("asOf") != "2024-03-31T00:00:00Z" {
			t.Errorf("asOf = %q", r.URL.Query().Get("asOf"))
		}
		io.WriteString(w, `{"interestPosted":0.12}`)
	}).Methods(http.MethodPost)
	router.HandleFunc("/savingAccount/{id}/preview-interest", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("from") == "" || q.Get("to") == "" {
			t.Errorf("query = %v", q)
		}
		io.WriteString(w, `{"interest":0.3}`)
	}).Methods(http.MethodGet)
	c, _ := newClient(t, router)
	ctx := context.Background()

	a := core.NewSavingAccount("A", "EUR")
	a.OpeningBalance = decimal.NewFromInt(50)
	if _, err := c.CreateAccount(ctx, a); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	name := "B"
	if _, err := c.PatchAccount(ctx, 1, AccountPatch{Name: &name}); err != nil {
		t.Fatalf("PatchAccount() error = %v", err)
	}
	if _, err := c.ArchiveAccount(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Snapshot(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Account(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteAccount(ctx, 1); err != nil {
		t.Fatal(err)
	}

	bal, err := c.Balance(ctx, 1)
	if err != nil || !bal.Equal(decimal.RequireFromString("50.25")) {
		t.Errorf("Balance() = %s, %v", bal, err)
	}
	posted, err := c.AccrueInterest(ctx, 1, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	if err != nil || !posted.Equal(decimal.RequireFromString("0.12")) {
		t.Errorf("AccrueInterest() = %s, %v", posted, err)
	}
	preview, err := c.PreviewInterest(ctx, 1, time.Now().AddDate(0, -1, 0), time.Now())
	if err != nil || !preview.Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("PreviewInterest() = %s, %v", preview, err)
	}

	want := "[POST /savingAccount PATCH /savingAccount/1 POST /savingAccount/1/archive GET /savingAccount/1/snapshot GET /savingAccount/1 DELETE /savingAccount/1]"
	if fmt.Sprint(calls) != want {
		t.Errorf("calls = %v", calls)
	}

	bad := core.NewSavingAccount("A", "euro")
	if _, err := c.CreateAccount(ctx, bad); !errors.Is(err, core.ErrInvalidCurrency) {
		t.Errorf("invalid currency error = %v", err)
	}
}
