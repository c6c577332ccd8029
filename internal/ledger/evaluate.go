package ledger

import "time"

// Evaluate applies the lazy window reset and the admission rule to acc and
// returns the next account state together with the decision. It has no side
// effects; stores call it while holding the account's lock.
//
// Order: reset if the window has elapsed, then free path, then paid path, else reject.
func Evaluate(acc Account, freeLimit int, window time.Duration, now time.Time) (Account, Decision) {
	next := acc
	reset := false
	if now.Sub(next.FreeResetAt) >= window {
		next.FreeUsed = 0
		next.FreeResetAt = now
		reset = true
	}

	d := Decision{
		AccountKey: acc.Key,
		FreeLimit:  freeLimit,
		Reset:      reset,
	}

	switch {
	case next.FreeUsed < freeLimit:
		next.FreeUsed++
		d.Admitted = true
		d.Consequence = ConsumeFree
	case next.PaidAvailable > 0:
		next.PaidAvailable--
		d.Admitted = true
		d.Consequence = ConsumePaid
	}

	d.FreeUsed = next.FreeUsed
	d.PaidAvailable = next.PaidAvailable
	d.WindowStart = next.FreeResetAt
	return next, d
}

// View reports acc as Evaluate would see it at now, without admitting anything.
func View(acc Account, freeLimit int, window time.Duration, now time.Time) Usage {
	used, start := acc.FreeUsed, acc.FreeResetAt
	if now.Sub(start) >= window {
		used, start = 0, now
	}
	return newUsage(used, freeLimit, acc.PaidAvailable, start, window)
}

func changed(a, b Account) bool {
	return a.FreeUsed != b.FreeUsed || a.PaidAvailable != b.PaidAvailable || !a.FreeResetAt.Equal(b.FreeResetAt)
}
