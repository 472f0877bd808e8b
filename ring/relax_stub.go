//go:build !amd64 || noasm

// relax_stub.go
//
// Portable spin hint for targets without the PAUSE stub.

package ring

// cpuRelax does nothing here; the consumer still yields every spinBudget polls.
func cpuRelax() {}
