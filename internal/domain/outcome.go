package domain

// OutcomeKind is the terminal state of one destination delivery task.
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomePartialFailure OutcomeKind = "partial-failure" // some content delivered, some not
	OutcomeFailure        OutcomeKind = "failure"
)

// DeliveryOutcome is the transient result of one destination attempt.
// It is surfaced to the admin notifier and to the owner's private chat,
// never persisted.
type DeliveryOutcome struct {
	BindingID int64
	OwnerID   int64
	Kind      OutcomeKind
	Detail    string
}

func (o DeliveryOutcome) Failed() bool { return o.Kind != OutcomeSuccess }
