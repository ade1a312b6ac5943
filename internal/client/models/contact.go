package models

// ContactMatch pairs one of the user's contact emails with the marketplace
// account registered under it.
type ContactMatch struct {
	Email   string
	Account Account
}
