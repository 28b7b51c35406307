package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/google/uuid"
	"github.com/haasonsaas/voxlate/internal/config"
)

// Store wraps the Postgres connection pool.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool, for tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

const userColumns = `id, phone, language_step, ui_lang, source_lang, target_lang, voice_gender,
	plan, free_used, stripe_customer_id, stripe_subscription_id, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var step, plan string
	err := row.Scan(&u.ID, &u.Phone, &step, &u.UILang, &u.SourceLang, &u.TargetLang,
		(*string)(&u.Gender), &plan, &u.FreeUsed, &u.StripeCustomerID,
		&u.StripeSubscriptionID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if u.Step, err = ParseStep(step); err != nil {
		return nil, err
	}
	if u.Plan, err = ParsePlan(plan); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByPhone fetches a user, returning ErrNotFound for unknown senders.
func (s *Store) GetByPhone(ctx context.Context, phone string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetOrCreateByPhone fetches the user, inserting a fresh row in the
// init step on first contact. The bool reports whether a row was
// created.
func (s *Store) GetOrCreateByPhone(ctx context.Context, phone string) (*User, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, phone, language_step, plan)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (phone) DO NOTHING`,
		uuid.NewString(), phone, string(StepInit), string(PlanFree))
	if err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	created := false
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		created = true
	}

	u, err := s.GetByPhone(ctx, phone)
	if err != nil {
		return nil, false, err
	}
	return u, created, nil
}

// SaveWizard persists the wizard fields after a transition.
func (s *Store) SaveWizard(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET language_step = $1, ui_lang = $2, source_lang = $3,
		 target_lang = $4, voice_gender = $5, updated_at = now()
		 WHERE phone = $6`,
		string(u.Step), u.UILang, u.SourceLang, u.TargetLang, string(u.Gender), u.Phone)
	if err != nil {
		return fmt.Errorf("save wizard: %w", err)
	}
	return nil
}

// ResetWizard clears onboarding state back to init. Plan and usage are
// untouched.
func (s *Store) ResetWizard(ctx context.Context, phone string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET language_step = $1, ui_lang = '', source_lang = '',
		 target_lang = '', voice_gender = '', updated_at = now()
		 WHERE phone = $2`,
		string(StepInit), phone)
	if err != nil {
		return fmt.Errorf("reset wizard: %w", err)
	}
	return nil
}

// AddFreeUsage charges credits against the free allowance. The row is
// locked so concurrent messages from one sender cannot double-spend.
func (s *Store) AddFreeUsage(ctx context.Context, phone string, credits int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin usage tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var plan string
	var used int
	err = tx.QueryRowContext(ctx,
		`SELECT plan, free_used FROM users WHERE phone = $1 FOR UPDATE`, phone).
		Scan(&plan, &used)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock usage row: %w", err)
	}

	if Plan(plan).Paid() {
		return tx.Commit()
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET free_used = free_used + $1, updated_at = now() WHERE phone = $2`,
		credits, phone)
	if err != nil {
		return fmt.Errorf("add usage: %w", err)
	}
	return tx.Commit()
}

// SetStripeCustomer records the Stripe customer id for a user.
func (s *Store) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET stripe_customer_id = $1, updated_at = now() WHERE id = $2`,
		customerID, userID)
	if err != nil {
		return fmt.Errorf("set stripe customer: %w", err)
	}
	return nil
}

// ActivatePlanByCustomer flips the plan and resets the free allowance
// for the user owning the Stripe customer id. Returns the number of
// rows updated so callers can fall back to the user-id match.
func (s *Store) ActivatePlanByCustomer(ctx context.Context, customerID string, plan Plan, subscriptionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET plan = $1, free_used = 0, stripe_subscription_id = $2,
		 updated_at = now() WHERE stripe_customer_id = $3`,
		string(plan), subscriptionID, customerID)
	if err != nil {
		return 0, fmt.Errorf("activate plan by customer: %w", err)
	}
	return res.RowsAffected()
}

// ActivatePlanByUserID is the fallback activation path when the
// customer id was never persisted (for example after a crash between
// customer creation and the checkout redirect).
func (s *Store) ActivatePlanByUserID(ctx context.Context, userID string, plan Plan, customerID, subscriptionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET plan = $1, free_used = 0, stripe_customer_id = $2,
		 stripe_subscription_id = $3, updated_at = now() WHERE id = $4`,
		string(plan), customerID, subscriptionID, userID)
	if err != nil {
		return fmt.Errorf("activate plan by user: %w", err)
	}
	return nil
}

// DowngradeByCustomer returns the user to the free plan after a
// subscription ends. free_used keeps its value.
func (s *Store) DowngradeByCustomer(ctx context.Context, customerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET plan = $1, stripe_subscription_id = '', updated_at = now()
		 WHERE stripe_customer_id = $2`,
		string(PlanFree), customerID)
	if err != nil {
		return 0, fmt.Errorf("downgrade by customer: %w", err)
	}
	return res.RowsAffected()
}

// LogTranslation appends one row to the translation log.
func (s *Store) LogTranslation(ctx context.Context, rec *TranslationRecord) error {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO translations (id, phone, original_text, translated_text,
		 source_lang, target_lang, credits)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, rec.Phone, rec.Original, rec.Translated, rec.SourceLang, rec.TargetLang, rec.Credits)
	if err != nil {
		return fmt.Errorf("log translation: %w", err)
	}
	return nil
}
