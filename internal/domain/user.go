package domain

import "time"

// User is a chat-platform user. Display metadata is overwritten on
// re-contact; FirstSeen is preserved.
type User struct {
	ID          string
	DisplayName string
	Handle      string
	FirstSeen   time.Time
}
