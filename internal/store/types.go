// Package store persists users, onboarding progress, plans, and the
// translation log in Postgres.
package store

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no row matches.
var ErrNotFound = errors.New("store: not found")

// Step is a user's position in the onboarding wizard.
type Step string

const (
	StepInit         Step = "init"
	StepChooseSource Step = "choose_source"
	StepChooseTarget Step = "choose_target"
	StepChooseGender Step = "choose_gender"
	StepReady        Step = "ready"
)

// ParseStep converts a stored value back into a Step.
func ParseStep(s string) (Step, error) {
	switch Step(s) {
	case StepInit, StepChooseSource, StepChooseTarget, StepChooseGender, StepReady:
		return Step(s), nil
	}
	return "", fmt.Errorf("store: unknown step %q", s)
}

// Plan is a user's billing plan.
type Plan string

const (
	PlanFree     Plan = "FREE"
	PlanMonthly  Plan = "MONTHLY"
	PlanAnnual   Plan = "ANNUAL"
	PlanLifetime Plan = "LIFETIME"
)

// ParsePlan converts a stored value back into a Plan.
func ParsePlan(s string) (Plan, error) {
	switch Plan(s) {
	case PlanFree, PlanMonthly, PlanAnnual, PlanLifetime:
		return Plan(s), nil
	}
	return "", fmt.Errorf("store: unknown plan %q", s)
}

// Paid reports whether the plan grants unlimited translations.
func (p Plan) Paid() bool {
	return p == PlanMonthly || p == PlanAnnual || p == PlanLifetime
}

// Gender selects the synthesized voice.
type Gender string

const (
	GenderUnset  Gender = ""
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

// User is one WhatsApp sender. Rows are created on first contact and
// never deleted; reset only clears the wizard fields.
type User struct {
	ID    string
	Phone string

	Step       Step
	UILang     string
	SourceLang string
	TargetLang string
	Gender     Gender

	Plan                 Plan
	FreeUsed             int
	StripeCustomerID     string
	StripeSubscriptionID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Configured reports whether the user can enter the translation
// pipeline.
func (u *User) Configured() bool {
	return u.Step == StepReady && u.SourceLang != "" && u.TargetLang != "" && u.Gender != GenderUnset
}

// TranslationRecord is one row of the append-only translation log.
type TranslationRecord struct {
	ID         string
	Phone      string
	Original   string
	Translated string
	SourceLang string
	TargetLang string
	Credits    int
	CreatedAt  time.Time
}
