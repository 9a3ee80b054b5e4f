package genclient

import (
	"context"
	"fmt"
	"time"
)

// Call runs fn under an optional timeout and turns a panic into an error.
// A zero timeout leaves ctx unchanged.
func Call(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (any, error)) (resp any, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("generative call panicked: %v", r)
		}
	}()
	return fn(ctx)
}
