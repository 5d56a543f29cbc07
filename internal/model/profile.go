package model

// Profile is the account record consulted at delivery time.
type Profile struct {
	OwnerID     string
	DisplayName string
	Email       string
}
