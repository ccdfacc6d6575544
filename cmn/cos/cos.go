// Package cos provides small ambient utilities: a stoppable-channel
// helper, a background-runner interface, and byte-size unit constants. Grounded on aistore's cmn/cos package as used
// from transport/collect.go (cos.StopCh, cos.Runner, cos.Infof).
package cos

import "sync"

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

// Runner is the interface of a long-lived background component; the net
// transport backend's port implements it.
type Runner interface {
	Name() string
	Run() error
	Stop(err error)
}

// StopCh is a close-once stop channel, grounded on aistore's cos.StopCh
// (transport/collect.go: gc.stopCh.Listen()/Close()).
type StopCh struct {
	ch   chan struct{}
	once sync.Once
}

func NewStopCh() *StopCh {
	return &StopCh{ch: make(chan struct{})}
}

func (s *StopCh) Listen() <-chan struct{} { return s.ch }

func (s *StopCh) Close() {
	s.once.Do(func() { close(s.ch) })
}
