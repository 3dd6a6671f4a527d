package middleware

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

// Recover runs fn and turns a panic into an error so a faulting handler
// cannot take the console down.
func Recover(log *zap.SugaredLogger, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorw("panic", "err", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}
