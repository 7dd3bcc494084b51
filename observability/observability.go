package observability

const (
	// StackName is the name of the metric label identifying a
	// simulated radio stack. Components of the same simulation
	// share the same value for this label.
	StackName = "stack_name"
)
