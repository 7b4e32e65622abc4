package marketplace

// TransactionStatus is the lifecycle state of a transaction.
type TransactionStatus string

const (
	StatusPending         TransactionStatus = "PENDING"
	StatusAwaitingPayment TransactionStatus = "AWAITING_PAYMENT"
	StatusCompleted       TransactionStatus = "COMPLETED"
	StatusCancelled       TransactionStatus = "CANCELLED"
	StatusDisputed        TransactionStatus = "DISPUTED"
)

// transitions is the legal adjacency of the transaction state machine.
// COMPLETED, CANCELLED and DISPUTED are terminal: no further status
// writes are accepted once reached.
var transitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:         {StatusAwaitingPayment, StatusCancelled},
	StatusAwaitingPayment: {StatusCompleted, StatusCancelled, StatusDisputed},
	StatusCompleted:       {},
	StatusCancelled:       {},
	StatusDisputed:        {},
}

// ParseTransactionStatus validates a raw status value against the five
// recognized states.
func ParseTransactionStatus(raw string) (TransactionStatus, bool) {
	s := TransactionStatus(raw)
	_, ok := transitions[s]
	return s, ok
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status accepts no further transitions.
func IsTerminal(s TransactionStatus) bool {
	return len(transitions[s]) == 0
}
