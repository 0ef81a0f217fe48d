package domain

// Slot is a bookable time in the studio calendar. The label is free text
// chosen by the admin ("Monday 14:00"); the core never parses it.
type Slot struct {
	ID        string
	Label     string
	Available bool
	Position  int
}
