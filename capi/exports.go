//go:build cgo

package capi

/*
#include <stdbool.h>
#include <stdint.h>

typedef uintptr_t CSCHandle;
*/
import "C"

import "runtime/cgo"

func session(h C.CSCHandle) *Session {
	return cgo.Handle(h).Value().(*Session)
}

//export CSC_Create
func CSC_Create() C.CSCHandle {
	s, err := NewSession(false, 1)
	if err != nil {
		return 0
	}
	return C.CSCHandle(cgo.NewHandle(s))
}

//export CSC_Destroy
func CSC_Destroy(h C.CSCHandle) {
	if h == 0 {
		return
	}
	cgo.Handle(h).Delete()
}

//export CSC_FlushOracle
func CSC_FlushOracle(h C.CSCHandle) {
	session(h).FlushOracle()
}

//export CSC_RecomputeScores
func CSC_RecomputeScores(h C.CSCHandle, safe C.char, result *C.char) C.bool {
	ok, v := session(h).RecomputeScores(byte(safe))
	*result = C.char(v)
	return C.bool(ok)
}

//export CSC_AddHitAndRecomputeScores
func CSC_AddHitAndRecomputeScores(h C.CSCHandle, result *C.char) C.bool {
	ok, v := session(h).AddHitAndRecomputeScores()
	*result = C.char(v)
	return C.bool(ok)
}
