package queue

// Estimate returns the expected wait in minutes for the given queue place:
// everyone ahead is served for avgMinutes each.
func Estimate(position, avgMinutes int) int {
	if position < 1 || avgMinutes < 0 {
		return 0
	}
	return (position - 1) * avgMinutes
}
