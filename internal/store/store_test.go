package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func userRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "phone", "language_step", "ui_lang", "source_lang", "target_lang",
		"voice_gender", "plan", "free_used", "stripe_customer_id",
		"stripe_subscription_id", "created_at", "updated_at",
	}).AddRow("u1", "+15551234567", "ready", "en", "en", "es", "FEMALE",
		"FREE", 2, "", "", now, now)
}

func TestGetByPhone(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .+ FROM users WHERE phone = \$1`).
		WithArgs("+15551234567").
		WillReturnRows(userRows())

	u, err := s.GetByPhone(context.Background(), "+15551234567")
	if err != nil {
		t.Fatalf("GetByPhone: %v", err)
	}
	if u.Step != StepReady || u.Plan != PlanFree || u.Gender != GenderFemale {
		t.Errorf("unexpected user: %+v", u)
	}
	if !u.Configured() {
		t.Error("user with all fields set should be configured")
	}
}

func TestGetByPhoneNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .+ FROM users WHERE phone = \$1`).
		WithArgs("+10000000000").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetByPhone(context.Background(), "+10000000000")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetOrCreateInsertsNewRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "+15550001111", "init", "FREE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	rows := userRows()
	mock.ExpectQuery(`SELECT .+ FROM users WHERE phone = \$1`).
		WithArgs("+15550001111").
		WillReturnRows(rows)

	_, created, err := s.GetOrCreateByPhone(context.Background(), "+15550001111")
	if err != nil {
		t.Fatalf("GetOrCreateByPhone: %v", err)
	}
	if !created {
		t.Error("expected created=true for fresh insert")
	}
}

func TestGetOrCreateExistingRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO users`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM users WHERE phone = \$1`).
		WillReturnRows(userRows())

	_, created, err := s.GetOrCreateByPhone(context.Background(), "+15551234567")
	if err != nil {
		t.Fatalf("GetOrCreateByPhone: %v", err)
	}
	if created {
		t.Error("expected created=false when row exists")
	}
}

func TestAddFreeUsageIncrementsForFreePlan(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT plan, free_used FROM users WHERE phone = \$1 FOR UPDATE`).
		WithArgs("+1555").
		WillReturnRows(sqlmock.NewRows([]string{"plan", "free_used"}).AddRow("FREE", 4))
	mock.ExpectExec(`UPDATE users SET free_used = free_used \+ \$1`).
		WithArgs(1, "+1555").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.AddFreeUsage(context.Background(), "+1555", 1); err != nil {
		t.Fatalf("AddFreeUsage: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAddFreeUsageSkipsPaidPlan(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT plan, free_used FROM users WHERE phone = \$1 FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"plan", "free_used"}).AddRow("LIFETIME", 5))
	mock.ExpectCommit()

	if err := s.AddFreeUsage(context.Background(), "+1555", 1); err != nil {
		t.Fatalf("AddFreeUsage: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("paid plan must not be charged: %v", err)
	}
}

func TestActivatePlanByCustomerResetsUsage(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE users SET plan = \$1, free_used = 0`).
		WithArgs("MONTHLY", "sub_1", "cus_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := s.ActivatePlanByCustomer(context.Background(), "cus_1", PlanMonthly, "sub_1")
	if err != nil {
		t.Fatalf("ActivatePlanByCustomer: %v", err)
	}
	if n != 1 {
		t.Errorf("rows affected = %d, want 1", n)
	}
}

func TestDowngradeKeepsFreeUsed(t *testing.T) {
	s, mock := newMockStore(t)
	// The downgrade statement must not touch free_used.
	mock.ExpectExec(`UPDATE users SET plan = \$1, stripe_subscription_id = ''`).
		WithArgs("FREE", "cus_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := s.DowngradeByCustomer(context.Background(), "cus_1")
	if err != nil {
		t.Fatalf("DowngradeByCustomer: %v", err)
	}
	if n != 1 {
		t.Errorf("rows affected = %d, want 1", n)
	}
}

func TestResetWizardClearsFields(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE users SET language_step = \$1, ui_lang = ''`).
		WithArgs("init", "+1555").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.ResetWizard(context.Background(), "+1555"); err != nil {
		t.Fatalf("ResetWizard: %v", err)
	}
}

func TestLogTranslation(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO translations`).
		WithArgs(sqlmock.AnyArg(), "+1555", "hola", "hello", "es", "en", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.LogTranslation(context.Background(), &TranslationRecord{
		Phone: "+1555", Original: "hola", Translated: "hello",
		SourceLang: "es", TargetLang: "en", Credits: 1,
	})
	if err != nil {
		t.Fatalf("LogTranslation: %v", err)
	}
}

func TestParseStep(t *testing.T) {
	for _, valid := range []string{"init", "choose_source", "choose_target", "choose_gender", "ready"} {
		if _, err := ParseStep(valid); err != nil {
			t.Errorf("ParseStep(%q) failed: %v", valid, err)
		}
	}
	if _, err := ParseStep("bogus"); err == nil {
		t.Error("ParseStep should reject unknown steps")
	}
}

func TestPlanPaid(t *testing.T) {
	if PlanFree.Paid() {
		t.Error("FREE must not be paid")
	}
	for _, p := range []Plan{PlanMonthly, PlanAnnual, PlanLifetime} {
		if !p.Paid() {
			t.Errorf("%s must be paid", p)
		}
	}
}
