package order

import "time"

// transitions is the per-item delivery state machine. Missing entries are
// terminal states.
var transitions = map[Status][]Status{
	StatusPending:        {StatusShipped, StatusCancelled, StatusPaymentFailed},
	StatusShipped:        {StatusOutForDelivery, StatusDelivered},
	StatusOutForDelivery: {StatusDelivered},
}

// CanTransition reports whether an item may move from one delivery status
// to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// RollUp derives the order-level status from the multiset of item statuses.
// The order status is never set directly by an operator; it always follows
// from item-level updates:
//
//   - every item Cancelled: order Cancelled
//   - every item Delivered: order Delivered, delivered-on stamped now
//   - exactly the mix {Delivered, Cancelled}: order Delivered, delivered-on
//     set to the latest of the delivered items' timestamps (the customer
//     received the kept portion)
//   - any other combination: no change
//
// The second return value reports whether anything changed.
func RollUp(items []Item, now time.Time) (Status, *time.Time, bool) {
	seen := make(map[Status]struct{}, 2)
	for i := range items {
		seen[items[i].Status] = struct{}{}
	}

	_, cancelled := seen[StatusCancelled]
	_, delivered := seen[StatusDelivered]

	switch {
	case len(seen) == 1 && cancelled:
		return StatusCancelled, nil, true

	case len(seen) == 1 && delivered:
		t := now
		return StatusDelivered, &t, true

	case len(seen) == 2 && cancelled && delivered:
		var latest *time.Time
		for i := range items {
			d := items[i].DeliveredOn
			if d == nil {
				continue
			}
			if latest == nil || d.After(*latest) {
				latest = d
			}
		}
		return StatusDelivered, latest, true
	}

	return "", nil, false
}

// applyRollUp recomputes the order status from its items and stamps the
// delivery time when the roll-up produces one.
func (o *Order) applyRollUp(now time.Time) {
	status, deliveredOn, changed := RollUp(o.Items, now)
	if !changed {
		return
	}
	o.Status = status
	if deliveredOn != nil {
		o.DeliveredOn = deliveredOn
	}
}
