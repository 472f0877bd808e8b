// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: debug.go — Cold-path diagnostics for the leak driver
//
// Purpose:
//   - Logs run parameters, per-offset failures and environment warnings.
//   - Never called inside a trial: a write syscall there is pure noise on the channel.
//
// Notes:
//   - Avoids fmt.Sprintf; messages are concatenated and written to stderr directly.
//   - Stackless logging model: no interfaces beyond error, no buffering.
//
// ⚠️ Never invoke between Flush and ProbeAll. Between offsets only.
// ─────────────────────────────────────────────────────────────────────────────

package debug

import "specleak/utils"

// DropError logs prefix and err on stderr.
// A nil err prints the bare prefix, used as a cheap trace tag.
//
//go:nosplit
//go:inline
func DropError(prefix string, err error) {
	if err != nil {
		utils.PrintWarning(prefix + ": " + err.Error() + "\n")
		return
	}
	utils.PrintWarning(prefix + "\n")
}

// DropMessage logs a tagged message on stderr.
//
//go:nosplit
//go:inline
func DropMessage(prefix, message string) {
	utils.PrintWarning(prefix + ": " + message + "\n")
}
