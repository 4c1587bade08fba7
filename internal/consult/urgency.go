package consult

// Urgency is the totally ordered severity classification of a consult.
// The canonical order is normal < semi-urgent < urgent < very_urgent < high;
// rule tables must only reference members of this order.
type Urgency string

const (
	UrgencyNormal     Urgency = "normal"
	UrgencySemiUrgent Urgency = "semi-urgent"
	UrgencyUrgent     Urgency = "urgent"
	UrgencyVeryUrgent Urgency = "very_urgent"
	UrgencyHigh       Urgency = "high"
)

var urgencyRank = map[Urgency]int{
	UrgencyNormal:     0,
	UrgencySemiUrgent: 1,
	UrgencyUrgent:     2,
	UrgencyVeryUrgent: 3,
	UrgencyHigh:       4,
}

// Rank returns the position of u in the canonical order. Unknown values rank
// as normal so a misconfigured rule can never escalate by accident.
func (u Urgency) Rank() int {
	return urgencyRank[u]
}

// Valid reports whether u is a member of the canonical order.
func (u Urgency) Valid() bool {
	_, ok := urgencyRank[u]
	return ok
}

// Max returns the higher-ranked of a and b.
func Max(a, b Urgency) Urgency {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Urgencies lists the canonical order, lowest first.
func Urgencies() []Urgency {
	return []Urgency{UrgencyNormal, UrgencySemiUrgent, UrgencyUrgent, UrgencyVeryUrgent, UrgencyHigh}
}
