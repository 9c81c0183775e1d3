package dataflow

import (
	"sync"
)

// errorMerger allows to listen to error channels of multiple node loops.
// Errors are logged and collected, but never stop other nodes: a failed
// node leaves the rest of the pipeline running.
type errorMerger struct {
	wg  sync.WaitGroup
	log Logger

	mu   sync.Mutex
	errs execErrors
}

// add error channels of started nodes to the merger.
func (m *errorMerger) add(errcList ...<-chan error) {
	m.wg.Add(len(errcList))
	for _, ec := range errcList {
		go m.listen(ec)
	}
}

// listen blocks until the error channel is closed.
func (m *errorMerger) listen(ec <-chan error) {
	defer m.wg.Done()
	for err := range ec {
		m.log.Info("node loop failed", err)
		m.mu.Lock()
		m.errs = append(m.errs, err)
		m.mu.Unlock()
	}
}

// wait blocks until all underlying error channels are closed and returns
// collected errors.
func (m *errorMerger) wait() error {
	m.wg.Wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs.ret()
}

// Wait blocks until the error channel is closed and returns the first
// error received, if any.
func Wait(errc <-chan error) error {
	for err := range errc {
		if err != nil {
			return err
		}
	}
	return nil
}
