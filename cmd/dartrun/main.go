// Command dartrun is the DART launcher (spec §6 CLI surface):
//
//	dartrun -n <n> <executable> [args...]
//
// It spawns n copies of <executable> and waits for all of them,
// assigning each a distinct unit id and the team size through the
// DART_ID/DART_SIZE/DART_SYNCAREA_ID/DART_SYNCAREA_SIZE environment
// variables consumed by cmn.ReadLauncherEnv, and additionally passes
// the equivalent --dart-id=/--dart-size=/--dart-syncarea_id=/
// --dart-syncarea_size= flags on argv for programs that parse their
// own command line instead (spec §6's documented CLI surface).
//
// Grounded on original_source/dart-shmem/dart-shmem-base/src/dart_init.h
// (dart_start spawning n copies of an executable and waiting on them)
// and on aistore's trname+uuid stream-naming convention
// (xact/xs/tcb.go) for generating a fresh rendezvous id per run.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/dash-project/dart-go/cmn"
	"github.com/dash-project/dart-go/cmn/nlog"
)

const (
	exitSuccess = 0
	exitFailure = 1
	exitAssert  = -6
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("dartrun", flag.ContinueOnError)
	n := fs.Int("n", 0, "number of unit processes to spawn")
	transport := fs.String("transport", "shm", "transport backend: shm | net")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}
	rest := fs.Args()
	if *n <= 0 || len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "usage: dartrun -n <n> [-transport shm|net] <executable> [args...]")
		return exitAssert
	}
	executable, execArgs := rest[0], rest[1:]

	var syncareaID string
	if *transport == "shm" {
		syncareaID = uuid.NewString()
	}

	var wg sync.WaitGroup
	exitCodes := make([]int, *n)
	for id := 0; id < *n; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			exitCodes[id] = spawn(executable, execArgs, id, *n, *transport, syncareaID)
		}(id)
	}
	wg.Wait()

	for _, code := range exitCodes {
		if code != exitSuccess {
			return exitFailure
		}
	}
	return exitSuccess
}

func spawn(executable string, execArgs []string, id, size int, transport, syncareaID string) int {
	flags := []string{
		"--dart-id=" + strconv.Itoa(id),
		"--dart-size=" + strconv.Itoa(size),
	}
	env := append(os.Environ(),
		"DART_ID="+strconv.Itoa(id),
		"DART_SIZE="+strconv.Itoa(size),
	)
	if syncareaID != "" {
		flags = append(flags,
			"--dart-syncarea_id="+syncareaID,
			"--dart-syncarea_size="+strconv.Itoa(size),
		)
		env = append(env,
			"DART_SYNCAREA_ID="+syncareaID,
			"DART_SYNCAREA_SIZE="+strconv.Itoa(size),
		)
	}

	cmdArgs := append(flags, execArgs...)
	cmd := exec.Command(executable, cmdArgs...)
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			nlog.Errorf("dartrun: unit %d exited with code %d", id, exitErr.ExitCode())
			return exitErr.ExitCode()
		}
		nlog.Errorf("dartrun: unit %d failed to start: %v (%s)", id, err, cmn.ErrOther)
		return exitFailure
	}
	return exitSuccess
}
