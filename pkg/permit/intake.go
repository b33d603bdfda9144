package permit

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Step names the field an intake session is waiting for.
type Step string

const (
	StepBrand        Step = "brand"
	StepModel        Step = "model"
	StepYear         Step = "year"
	StepSerial       Step = "serial"
	StepEngine       Step = "engine"
	StepColor        Step = "color"
	StepVehicleType  Step = "vehicle_type"
	StepHolderName   Step = "holder_name"
	StepConfirmation Step = "awaiting_confirmation"
	StepComplete     Step = "complete"
)

var intakeOrder = []Step{
	StepBrand,
	StepModel,
	StepYear,
	StepSerial,
	StepEngine,
	StepColor,
	StepVehicleType,
	StepHolderName,
}

var (
	affirmativeAnswers = map[string]struct{}{"SI": {}, "SÍ": {}, "S": {}, "YES": {}, "CONFIRMAR": {}}
	negativeAnswers    = map[string]struct{}{"NO": {}, "N": {}, "CORREGIR": {}}
)

// String returns the step name.
func (step Step) String() string {
	return string(step)
}

// Session is the per-owner intake state.
type Session struct {
	Step        Step        `json:"step"`
	Application Application `json:"application"`
	StartedAt   time.Time   `json:"started_at"`
}

// StepResult describes the session after one answer was accepted.
type StepResult struct {
	Session   Session
	Complete  bool
	Restarted bool
}

// Collector drives the linear intake dialogue over a SessionStore.
type Collector struct {
	sessions SessionStore
	nowFn    func() time.Time
	confirm  bool
}

// NewCollector wires a Collector. When confirm is set the session asks for confirmation after the last field.
func NewCollector(sessions SessionStore, now func() time.Time, confirm bool) (*Collector, error) {
	if sessions == nil {
		return nil, fmt.Errorf("%w: session store is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	return &Collector{sessions: sessions, nowFn: now, confirm: confirm}, nil
}

// Begin discards any existing session and starts a fresh one at the first field.
func (collector *Collector) Begin(ctx context.Context, owner OwnerID) (Session, error) {
	session := Session{Step: intakeOrder[0], StartedAt: collector.nowFn()}
	if err := collector.sessions.Save(ctx, owner, session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// Reset drops the owner's session.
func (collector *Collector) Reset(ctx context.Context, owner OwnerID) error {
	return collector.sessions.Delete(ctx, owner)
}

// Active returns the owner's in-progress session.
func (collector *Collector) Active(ctx context.Context, owner OwnerID) (Session, bool, error) {
	session, found, err := collector.sessions.Load(ctx, owner)
	if err != nil || !found {
		return Session{}, false, err
	}
	if session.Step == StepComplete {
		return Session{}, false, nil
	}
	return session, true, nil
}

// Submit applies one answer. A rule violation returns ValidationError and leaves the session unchanged.
// A completed session is removed from the store.
func (collector *Collector) Submit(ctx context.Context, owner OwnerID, answer string) (StepResult, error) {
	session, found, err := collector.Active(ctx, owner)
	if err != nil {
		return StepResult{}, err
	}
	if !found {
		return StepResult{}, ErrNoIntakeSession
	}
	normalized := strings.ToUpper(strings.TrimSpace(answer))

	if session.Step == StepConfirmation {
		return collector.confirmAnswer(ctx, owner, session, normalized)
	}

	value, rule := validateAnswer(session.Step, normalized, collector.nowFn())
	if rule != "" {
		return StepResult{Session: session}, ValidationError{Step: session.Step, Rule: rule}
	}
	assignAnswer(&session.Application, session.Step, value)
	session.Step = nextStep(session.Step, collector.confirm)
	if session.Step == StepComplete {
		if err := collector.sessions.Delete(ctx, owner); err != nil {
			return StepResult{}, err
		}
		return StepResult{Session: session, Complete: true}, nil
	}
	if err := collector.sessions.Save(ctx, owner, session); err != nil {
		return StepResult{}, err
	}
	return StepResult{Session: session}, nil
}

func (collector *Collector) confirmAnswer(ctx context.Context, owner OwnerID, session Session, answer string) (StepResult, error) {
	if _, ok := affirmativeAnswers[answer]; ok {
		session.Step = StepComplete
		if err := collector.sessions.Delete(ctx, owner); err != nil {
			return StepResult{}, err
		}
		return StepResult{Session: session, Complete: true}, nil
	}
	if _, ok := negativeAnswers[answer]; ok {
		restarted, err := collector.Begin(ctx, owner)
		if err != nil {
			return StepResult{}, err
		}
		return StepResult{Session: restarted, Restarted: true}, nil
	}
	return StepResult{Session: session}, ValidationError{Step: StepConfirmation, Rule: "answer SI or NO"}
}

func nextStep(current Step, confirm bool) Step {
	for index, step := range intakeOrder {
		if step != current {
			continue
		}
		if index+1 < len(intakeOrder) {
			return intakeOrder[index+1]
		}
		break
	}
	if confirm {
		return StepConfirmation
	}
	return StepComplete
}

func validateAnswer(step Step, value string, now time.Time) (string, string) {
	length := utf8.RuneCountInString(value)
	switch step {
	case StepBrand:
		return value, lengthRule(length, 2, 0)
	case StepModel:
		return value, lengthRule(length, 1, 0)
	case StepYear:
		return value, yearRule(value, now)
	case StepSerial:
		return value, lengthRule(length, 5, 25)
	case StepEngine:
		return value, lengthRule(length, 3, 25)
	case StepColor:
		return value, lengthRule(length, 3, 20)
	case StepVehicleType:
		return value, lengthRule(length, 3, 25)
	case StepHolderName:
		if rule := lengthRule(length, 5, 60); rule != "" {
			return value, rule
		}
		words := strings.Fields(value)
		if len(words) < 2 {
			return value, "at least 2 words"
		}
		return strings.Join(words, " "), ""
	default:
		return value, fmt.Sprintf("unexpected step %q", step)
	}
}

func lengthRule(length int, minimum int, maximum int) string {
	if maximum > 0 && (length < minimum || length > maximum) {
		return fmt.Sprintf("length %d..%d", minimum, maximum)
	}
	if length < minimum {
		return fmt.Sprintf("at least %d characters", minimum)
	}
	return ""
}

func yearRule(value string, now time.Time) string {
	maximum := now.Year() + 1
	rule := fmt.Sprintf("4-digit year between %d and %d", minimumModelYear, maximum)
	if len(value) != 4 {
		return rule
	}
	year := 0
	for _, character := range value {
		if character < '0' || character > '9' {
			return rule
		}
		year = year*10 + int(character-'0')
	}
	if year < minimumModelYear || year > maximum {
		return rule
	}
	return ""
}

func assignAnswer(application *Application, step Step, value string) {
	switch step {
	case StepBrand:
		application.Brand = value
	case StepModel:
		application.Model = value
	case StepYear:
		application.Year = value
	case StepSerial:
		application.Serial = value
	case StepEngine:
		application.Engine = value
	case StepColor:
		application.Color = value
	case StepVehicleType:
		application.VehicleType = value
	case StepHolderName:
		application.HolderName = value
	}
}
