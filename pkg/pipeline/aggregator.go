package pipeline

// aggregator collects outcomes from concurrent upload tasks.
// Tasks only send on the channel; a single goroutine owns the result.
type aggregator struct {
	outcomes chan Outcome
	done     chan struct{}
	result   BatchResult
	notify   func(Progress)
}

func newAggregator(buffer int, notify func(Progress)) *aggregator {
	a := &aggregator{
		outcomes: make(chan Outcome, buffer),
		done:     make(chan struct{}),
		notify:   notify,
	}
	go a.drain()
	return a
}

func (a *aggregator) drain() {
	defer close(a.done)
	for o := range a.outcomes {
		if o.OK() {
			a.result.Succeeded = append(a.result.Succeeded, Upload{Item: o.Item, Handle: o.Handle})
		} else {
			a.result.Failed = append(a.result.Failed, Failure{Item: o.Item, Err: o.Err})
		}
		if a.notify != nil {
			a.notify(Progress{
				Completed: a.result.Total(),
				Succeeded: len(a.result.Succeeded),
				Failed:    len(a.result.Failed),
				Last:      o,
			})
		}
	}
}

// add records one outcome. It must not be called after close.
func (a *aggregator) add(o Outcome) {
	a.outcomes <- o
}

// close waits for every recorded outcome to be drained and returns the result.
func (a *aggregator) close() BatchResult {
	close(a.outcomes)
	<-a.done
	return a.result
}
