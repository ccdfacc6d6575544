//go:build dart_debug

// Package debug provides build-tag-gated assertions, grounded on
// aistore's cmn/debug package (debug.Assert/debug.AssertMsg/
// debug.AssertNoErr as called from transport/collect.go and
// xact/xs/tcb.go). Compiled in only when the "dart_debug" build tag is
// set; see the no-op variant in off.go otherwise.
package debug

import "fmt"

func Assert(cond bool) {
	if !cond {
		panic("assertion failed")
	}
}

func AssertMsg(cond bool, msg string) {
	if !cond {
		panic("assertion failed: " + msg)
	}
}

func AssertNoErr(err error) {
	if err != nil {
		panic(fmt.Sprintf("assertion failed: unexpected error: %v", err))
	}
}

func Assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}
