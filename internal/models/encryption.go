package models

// Encryption parameters for at-rest database encryption
const (
	NonceSize  = 12
	KeySize    = 32
	Iterations = 100000
)
