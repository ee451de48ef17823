package browser

import (
	"context"
)

// CombineContext derives a context from target, which carries the chromedp
// tab, that is also canceled when caller is done.
func CombineContext(target, caller context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(target)
	stop := context.AfterFunc(caller, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
