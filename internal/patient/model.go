package patient

import "time"

// Patient identity is keyed by email: the same email across dialogues maps to
// the same patient row. Age is stored as free text because it is captured
// conversationally.
type Patient struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Age       string    `json:"age"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
