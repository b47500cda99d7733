package core

import "time"

// Session represents an authenticated user session
type Session struct {
	ID             string         // Unique session identifier
	Address        string         // Verified wallet address
	BlockchainType BlockchainType // Chain family the address was verified on
	ChainID        string         // Chain id or network label from the sign-in message
	IssuedAt       time.Time      // When the session was created
	RefreshExpiry  time.Time      // When the refresh capability expires
	AccessExpiry   time.Time      // When the access capability expires
	RefreshID      string         // Unique identifier for the refresh token
}
