// Package capi is the C ABI surface of spec §6: a thin cgo layer of
// `//export`-annotated wrappers translating the flat dart package 1:1
// into the C function names and types described in
// original_source/dart-if/include/dash/dart/if/dart_*.h, including the
// packed 16-byte little-endian dart_gptr_t layout (gptr.Pack/Unpack).
//
// Every exported function here does argument marshalling only; all
// behavior lives in package dart. Build as `go build -buildmode=c-shared`
// (or c-archive) with CGO_ENABLED=1 to link this into a C or C++
// program; package main plus the //export comments are what the cgo
// toolchain requires to emit a dart.h header and the C symbols below.
package main

/*
#include <stdint.h>
#include <string.h>

typedef struct {
    int32_t  unitid : 24;
    unsigned flags  : 8;
    int16_t  segid;
    int16_t  teamid;
    union {
        uint64_t offset;
        void     *addr;
    } addr_or_offs;
} dart_gptr_t;
*/
import "C"

import (
	"context"
	"unsafe"

	"github.com/dash-project/dart-go/cmn"
	"github.com/dash-project/dart-go/dart"
	"github.com/dash-project/dart-go/internal/dtype"
	"github.com/dash-project/dart-go/internal/gptr"
)

func toCCode(err error) C.int {
	return C.int(cmn.CodeOf(err))
}

// toGPtr converts the wire-compatible C struct into a gptr.GPtr by
// copying its 16 raw bytes through gptr.Unpack, rather than reaching
// into individual bitfields (the struct's memory layout is the
// contract, not its field accessors — spec's packed-record design
// note).
func toGPtr(c *C.dart_gptr_t) gptr.GPtr {
	var wire [gptr.WireSize]byte
	C.memcpy(unsafe.Pointer(&wire[0]), unsafe.Pointer(c), C.size_t(gptr.WireSize))
	return gptr.Unpack(wire)
}

func fromGPtr(g gptr.GPtr, out *C.dart_gptr_t) {
	wire := g.Pack()
	C.memcpy(unsafe.Pointer(out), unsafe.Pointer(&wire[0]), C.size_t(gptr.WireSize))
}

//export dart_init
func dart_init(argc *C.int, argv ***C.char) C.int {
	// argc/argv are accepted for ABI compatibility with the original
	// MPI-era signature; unit/size/transport discovery happens through
	// the launcher-assigned environment (cmn.ReadLauncherEnv), not argv.
	_, err := dart.Init()
	return toCCode(err)
}

//export dart_init_thread
func dart_init_thread(argc *C.int, argv ***C.char, threadSafety *C.int) C.int {
	_, err := dart.InitThread(dart.ThreadMultiple)
	if threadSafety != nil {
		*threadSafety = C.int(dart.ThreadMultiple)
	}
	return toCCode(err)
}

//export dart_exit
func dart_exit() C.int {
	_, err := dart.Exit()
	return toCCode(err)
}

//export dart_initialized
func dart_initialized() C.int {
	if dart.Initialized() {
		return 1
	}
	return 0
}

//export dart_abort
func dart_abort(code C.int) {
	dart.Abort(int(code))
}

//export dart_myid
func dart_myid(out *C.int32_t) C.int {
	id, err := dart.MyID()
	if err == nil {
		*out = C.int32_t(id)
	}
	return toCCode(err)
}

//export dart_size
func dart_size(out *C.int) C.int {
	n, err := dart.Size()
	if err == nil {
		*out = C.int(n)
	}
	return toCCode(err)
}

// --- Global pointer accessors (dart_globmem.h) ---

//export dart_gptr_getaddr
func dart_gptr_getaddr(g C.dart_gptr_t, out *unsafe.Pointer) C.int {
	buf, err := dart.GetAddr(toGPtr(&g))
	if err != nil {
		return toCCode(err)
	}
	if buf == nil {
		*out = nil
		return C.int(cmn.OK)
	}
	*out = unsafe.Pointer(&buf[0])
	return C.int(cmn.OK)
}

//export dart_gptr_setaddr
func dart_gptr_setaddr(g *C.dart_gptr_t, addr C.uint64_t) {
	fromGPtr(dart.SetAddr(toGPtr(g), uint64(addr)), g)
}

//export dart_gptr_incaddr
func dart_gptr_incaddr(g *C.dart_gptr_t, delta C.int64_t) {
	fromGPtr(dart.IncAddr(toGPtr(g), int64(delta)), g)
}

//export dart_gptr_setunit
func dart_gptr_setunit(g *C.dart_gptr_t, unit C.int32_t) {
	fromGPtr(dart.SetUnit(toGPtr(g), gptr.GlobalUnit(unit)), g)
}

// --- Memory (dart_globmem.h) ---

//export dart_memalloc
func dart_memalloc(nbytes C.size_t, out *C.dart_gptr_t) C.int {
	g, err := dart.Memalloc(uint64(nbytes))
	if err == nil {
		fromGPtr(g, out)
	}
	return toCCode(err)
}

//export dart_memfree
func dart_memfree(g C.dart_gptr_t) C.int {
	return toCCode(dart.Memfree(toGPtr(&g)))
}

//export dart_team_memalloc_aligned
func dart_team_memalloc_aligned(teamID C.int16_t, nbytesUnit C.size_t, out *C.dart_gptr_t) C.int {
	g, err := dart.TeamMemallocAligned(context.Background(), gptr.TeamID(teamID), uint64(nbytesUnit))
	if err == nil {
		fromGPtr(g, out)
	}
	return toCCode(err)
}

//export dart_team_memfree
func dart_team_memfree(g C.dart_gptr_t) C.int {
	return toCCode(dart.TeamMemfree(toGPtr(&g)))
}

// --- RMA (dart_communication.h) ---

//export dart_get_blocking
func dart_get_blocking(dest unsafe.Pointer, g C.dart_gptr_t, nelem C.size_t, srcType, dstType C.int64_t) C.int {
	elemSize, err := dart.TypeSize(dtype.Datatype(dstType))
	if err != nil {
		return toCCode(err)
	}
	buf := unsafe.Slice((*byte)(dest), int(nelem)*elemSize)
	return toCCode(dart.GetBlocking(context.Background(), buf, toGPtr(&g), uint64(nelem), dtype.Datatype(srcType), dtype.Datatype(dstType)))
}

//export dart_put_blocking
func dart_put_blocking(g C.dart_gptr_t, src unsafe.Pointer, nelem C.size_t, srcType, dstType C.int64_t) C.int {
	elemSize, err := dart.TypeSize(dtype.Datatype(srcType))
	if err != nil {
		return toCCode(err)
	}
	buf := unsafe.Slice((*byte)(src), int(nelem)*elemSize)
	return toCCode(dart.PutBlocking(context.Background(), toGPtr(&g), buf, uint64(nelem), dtype.Datatype(srcType), dtype.Datatype(dstType)))
}

//export dart_flush
func dart_flush(g C.dart_gptr_t) C.int {
	return toCCode(dart.Flush(toGPtr(&g)))
}

//export dart_flush_all
func dart_flush_all(g C.dart_gptr_t) C.int {
	return toCCode(dart.FlushAll(toGPtr(&g)))
}

// --- Collectives (dart_communication.h) ---

//export dart_barrier
func dart_barrier(teamID C.int16_t) C.int {
	return toCCode(dart.Barrier(context.Background(), gptr.TeamID(teamID)))
}

//export dart_bcast
func dart_bcast(buf unsafe.Pointer, nbytes C.size_t, root C.int, teamID C.int16_t) C.int {
	data := unsafe.Slice((*byte)(buf), int(nbytes))
	return toCCode(dart.Bcast(context.Background(), gptr.TeamID(teamID), int(root), data))
}

//export dart_allreduce
func dart_allreduce(sendbuf, recvbuf unsafe.Pointer, nbytes C.size_t, op C.int, t C.int64_t, teamID C.int16_t) C.int {
	send := unsafe.Slice((*byte)(sendbuf), int(nbytes))
	recv := unsafe.Slice((*byte)(recvbuf), int(nbytes))
	return toCCode(dart.Allreduce(context.Background(), gptr.TeamID(teamID), send, recv, int(nbytes), dart.Op(op), dtype.Datatype(t)))
}

func main() {}
