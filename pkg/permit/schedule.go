package permit

import (
	"fmt"
	"time"
)

// CheckpointKind distinguishes reminders from the final expiry point.
type CheckpointKind int

const (
	CheckpointReminder CheckpointKind = iota
	CheckpointFinalNotice
	CheckpointExpiry
)

// Checkpoint is an offset from the reservation start where the task acts.
type Checkpoint struct {
	Offset time.Duration
	Kind   CheckpointKind
}

// ReminderPlan splits a payment window into reminder checkpoints.
// Reminders fall at Deadline*k/Marks for k in 1..Marks-1, a final notice at Deadline-FinalNotice
// when that is after the last reminder, then expiry at Deadline.
type ReminderPlan struct {
	Deadline    time.Duration
	Marks       int
	FinalNotice time.Duration
}

// DefaultReminderPlan reminds at 30, 60, 90 and 110 minutes and expires at two hours.
func DefaultReminderPlan() ReminderPlan {
	return ReminderPlan{
		Deadline:    DefaultPaymentWindow,
		Marks:       DefaultReminderMarks,
		FinalNotice: DefaultFinalNotice,
	}
}

// Validate checks the plan is schedulable.
func (plan ReminderPlan) Validate() error {
	if plan.Deadline <= 0 {
		return fmt.Errorf("%w: deadline must be positive", ErrInvalidReminderPlan)
	}
	if plan.Marks < 1 {
		return fmt.Errorf("%w: marks must be at least 1", ErrInvalidReminderPlan)
	}
	if plan.FinalNotice < 0 || plan.FinalNotice >= plan.Deadline {
		return fmt.Errorf("%w: final notice must be within the deadline", ErrInvalidReminderPlan)
	}
	return nil
}

// Checkpoints returns the ordered checkpoints, ending with expiry.
func (plan ReminderPlan) Checkpoints() []Checkpoint {
	checkpoints := make([]Checkpoint, 0, plan.Marks+1)
	var last time.Duration
	for mark := 1; mark < plan.Marks; mark++ {
		offset := plan.Deadline * time.Duration(mark) / time.Duration(plan.Marks)
		checkpoints = append(checkpoints, Checkpoint{Offset: offset, Kind: CheckpointReminder})
		last = offset
	}
	if plan.FinalNotice > 0 {
		finalOffset := plan.Deadline - plan.FinalNotice
		if finalOffset > last {
			checkpoints = append(checkpoints, Checkpoint{Offset: finalOffset, Kind: CheckpointFinalNotice})
		}
	}
	return append(checkpoints, Checkpoint{Offset: plan.Deadline, Kind: CheckpointExpiry})
}

// remainingCheckpoints drops checkpoints already passed at elapsed. Expiry is always kept.
func (plan ReminderPlan) remainingCheckpoints(elapsed time.Duration) []Checkpoint {
	all := plan.Checkpoints()
	remaining := make([]Checkpoint, 0, len(all))
	for _, checkpoint := range all {
		if checkpoint.Offset > elapsed || checkpoint.Kind == CheckpointExpiry {
			remaining = append(remaining, checkpoint)
		}
	}
	return remaining
}
