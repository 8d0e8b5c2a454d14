package models

// Voter is a registry entry. PublicKey doubles as the identity recorded in votes.
type Voter struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DateOfBirth  string `json:"dob"`
	PublicKey    string `json:"public_key"`
	HasVoted     bool   `json:"has_voted"`
	RegisteredAt int64  `json:"registered_at"`
}
