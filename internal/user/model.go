package user

import "time"

// User is a registered license holder.
type User struct {
	ID         string
	Email      string
	Tier       string
	LicenseKey string
	// Devices holds the device identifiers seen for this user, in the
	// order they appeared. The first entry comes from registration.
	Devices   []string
	CreatedAt time.Time
}
