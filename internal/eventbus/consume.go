package eventbus

import "context"

// Consume subscribes to bus and calls fn for every event until ctx is
// canceled or the bus is closed. The returned channel is closed once the
// consumer goroutine exits.
func Consume(ctx context.Context, bus EventBus, fn func(Event)) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || fn == nil {
		close(done)
		return done
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				fn(ev)
			}
		}
	}()
	return done
}
