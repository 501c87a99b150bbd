package annul

import (
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// isolate runs fn on its own goroutine and waits for it. A panic in fn is
// recovered and returned as a *PanicError naming file.
func isolate(file string, fn func() error) error {
	var g errgroup.Group
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{File: file, Value: r, Stack: debug.Stack()}
			}
		}()
		return fn()
	})
	return g.Wait()
}
