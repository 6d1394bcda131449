package monitor

// DefaultRetryLimit is the failure budget before a character is suspended.
const DefaultRetryLimit = 8

// RetryPolicy is the single source of truth for the suspension decision.
// A character stays Active while its consecutive-failure count is below
// the limit; reaching the limit suspends it until re-authentication.
type RetryPolicy struct {
	Limit int
}

func (p RetryPolicy) limit() int {
	if p.Limit > 0 {
		return p.Limit
	}
	return DefaultRetryLimit
}

// Exhausted reports whether the failure count has used up the budget.
func (p RetryPolicy) Exhausted(failures int) bool {
	return failures >= p.limit()
}
