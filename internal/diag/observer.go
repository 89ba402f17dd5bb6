package diag

import (
	"context"
)

// Observer keeps the most recent exchanges read from a Recorder.
type Observer struct {
	exchanges []Exchange
	limit     int
	input     chan Exchange
	out       chan chan Exchange
	done      chan struct{}
	cancel    context.CancelFunc
}

// NewObserver keeps at most limit exchanges; older ones are discarded.
func NewObserver(input chan Exchange, limit int) *Observer {
	ctx, cancel := context.WithCancel(context.Background())
	obs := &Observer{
		exchanges: make([]Exchange, 0),
		limit:     max(limit, 1),
		input:     input,
		out:       make(chan chan Exchange),
		done:      make(chan struct{}),
		cancel:    cancel,
	}

	go obs.observe(ctx)

	return obs
}

// Exchanges returns a copy of the kept exchanges, oldest first.
func (o *Observer) Exchanges() []Exchange {
	ex := []Exchange{}
	c := make(chan Exchange)
	select {
	case o.out <- c:
	case <-o.done:
		return ex
	}
	for e := range c {
		ex = append(ex, e)
	}
	return ex
}

// Last returns at most n of the most recent exchanges.
func (o *Observer) Last(n int) []Exchange {
	ex := o.Exchanges()
	if len(ex) > n {
		ex = ex[len(ex)-n:]
	}
	return ex
}

func (o *Observer) Close() {
	o.cancel()
	<-o.done
}

func (o *Observer) observe(ctx context.Context) {
	defer close(o.done)
	for {
		select {
		case e, ok := <-o.input:
			if !ok {
				o.input = nil
				continue
			}
			o.exchanges = append(o.exchanges, e)
			if len(o.exchanges) > o.limit {
				o.exchanges = o.exchanges[len(o.exchanges)-o.limit:]
			}
		case c := <-o.out:
			for _, e := range o.exchanges {
				c <- e
			}
			close(c)
		case <-ctx.Done():
			return
		}
	}
}
