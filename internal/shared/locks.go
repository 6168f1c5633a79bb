package shared

import "fmt"

// InventorySessionLockKey builds redis keys guarding inventory validation.
func InventorySessionLockKey(sessionID int64) string {
	return fmt.Sprintf("inventory:session:%d:lock", sessionID)
}

// ReconcileLockKey guards the reconciliation job against overlapping runs.
func ReconcileLockKey(check string) string {
	return fmt.Sprintf("reconcile:%s:lock", check)
}
