//go:build !dart_debug

package debug

func Assert(bool)                              {}
func AssertMsg(bool, string)                   {}
func AssertNoErr(error)                        {}
func Assertf(bool, string, ...interface{})     {}
