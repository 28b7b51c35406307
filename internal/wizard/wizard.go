// Package wizard drives the onboarding conversation: which language
// the user speaks, which language to translate into, and which voice
// reads the result.
package wizard

import (
	"context"
	"strings"

	"github.com/haasonsaas/voxlate/internal/menu"
	"github.com/haasonsaas/voxlate/internal/observability"
	"github.com/haasonsaas/voxlate/internal/store"
)

// Saver persists wizard progress.
type Saver interface {
	SaveWizard(ctx context.Context, u *store.User) error
	ResetWizard(ctx context.Context, phone string) error
}

// Engine advances users through the onboarding steps.
type Engine struct {
	store   Saver
	metrics *observability.Metrics
}

// New builds the engine. metrics may be nil.
func New(s Saver, m *observability.Metrics) *Engine {
	return &Engine{store: s, metrics: m}
}

// IsResetCommand reports whether body is the restart command. Checked
// before any state-specific handling so it works from every step.
func IsResetCommand(body string) bool {
	switch strings.ToLower(strings.TrimSpace(body)) {
	case "reset", "change language":
		return true
	}
	return false
}

// Reset clears onboarding state and re-sends the welcome menu in the
// neutral default language. Plan and usage survive.
func (e *Engine) Reset(ctx context.Context, u *store.User) ([]string, error) {
	if err := e.store.ResetWizard(ctx, u.Phone); err != nil {
		return nil, err
	}
	u.Step = store.StepInit
	u.UILang, u.SourceLang, u.TargetLang = "", "", ""
	u.Gender = store.GenderUnset
	e.transition(store.StepInit)
	return []string{menu.Welcome(menu.DefaultLang)}, nil
}

// Handle processes one message for a user who has not finished
// onboarding. It returns the replies to send, in order. Unrecognized
// input re-prompts without advancing.
func (e *Engine) Handle(ctx context.Context, u *store.User, input string) ([]string, error) {
	switch u.Step {
	case store.StepInit, store.StepChooseSource:
		return e.handleSource(ctx, u, input)
	case store.StepChooseTarget:
		return e.handleTarget(ctx, u, input)
	case store.StepChooseGender:
		return e.handleGender(ctx, u, input)
	default:
		return nil, nil
	}
}

func (e *Engine) handleSource(ctx context.Context, u *store.User, input string) ([]string, error) {
	lang := menu.Match(input)
	if lang == nil {
		// First contact or junk input: (re-)send the welcome menu
		// in the default language and wait in choose_source.
		if u.Step == store.StepInit {
			u.Step = store.StepChooseSource
			if err := e.store.SaveWizard(ctx, u); err != nil {
				return nil, err
			}
			e.transition(store.StepChooseSource)
		}
		return []string{menu.Welcome(menu.DefaultLang)}, nil
	}

	u.SourceLang = lang.Code
	u.UILang = lang.Code
	u.Step = store.StepChooseTarget
	if err := e.store.SaveWizard(ctx, u); err != nil {
		return nil, err
	}
	e.transition(store.StepChooseTarget)
	return []string{
		menu.Explainer(u.UILang),
		menu.ReceiveMenu(u.UILang),
	}, nil
}

func (e *Engine) handleTarget(ctx context.Context, u *store.User, input string) ([]string, error) {
	lang := menu.Match(input)
	if lang == nil {
		return []string{menu.ReceiveMenu(u.UILang)}, nil
	}
	if lang.Code == u.SourceLang {
		return []string{
			menu.MustDiffer(u.UILang),
			menu.ReceiveMenu(u.UILang),
		}, nil
	}

	u.TargetLang = lang.Code
	u.Step = store.StepChooseGender
	if err := e.store.SaveWizard(ctx, u); err != nil {
		return nil, err
	}
	e.transition(store.StepChooseGender)
	return []string{menu.GenderPrompt(u.UILang)}, nil
}

func (e *Engine) handleGender(ctx context.Context, u *store.User, input string) ([]string, error) {
	g := menu.MatchGender(u.UILang, input)
	if g == "" {
		return []string{menu.GenderPrompt(u.UILang)}, nil
	}

	u.Gender = store.Gender(g)
	u.Step = store.StepReady
	if err := e.store.SaveWizard(ctx, u); err != nil {
		return nil, err
	}
	e.transition(store.StepReady)
	return []string{menu.SetupComplete(u.UILang)}, nil
}

func (e *Engine) transition(to store.Step) {
	if e.metrics != nil {
		e.metrics.WizardTransition(string(to))
	}
}
