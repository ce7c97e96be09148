// File: model/identities.go
package model

import "time"

// IdentityInfo stores information about registered participants in the system.
type IdentityInfo struct {
	ObjectType    string    `json:"objectType"`    // Set to the composite key object type (IdentityInfo)
	ID            string    `json:"id"`            // Wallet-style address of the identity
	Roles         []string  `json:"roles"`         // List of roles assigned to this identity
	IsAdmin       bool      `json:"isAdmin"`       // Whether this identity has admin privileges
	RegisteredBy  string    `json:"registeredBy"`  // Identity that first registered this one
	RegisteredAt  time.Time `json:"registeredAt"`  // Timestamp when identity was registered
	LastUpdatedAt time.Time `json:"lastUpdatedAt"` // Timestamp of last update to this record
}
