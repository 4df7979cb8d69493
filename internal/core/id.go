package core

import "fmt"

// MoveID formats a sequential move id, e.g. M001 for n=1.
func MoveID(n int) string {
	return fmt.Sprintf("M%03d", n)
}

// ClaimID formats a claim id within a move, e.g. M001_C1.
func ClaimID(moveID string, n int) string {
	return fmt.Sprintf("%s_C%d", moveID, n)
}
