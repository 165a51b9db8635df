// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package repseq

import (
	"errors"
	"sync"
)

// throttle limits concurrency to Max goroutines and collects every
// reported error, so one bad sample or pair does not hide the rest.
type throttle struct {
	Max       int
	wg        sync.WaitGroup
	ch        chan bool
	setupOnce sync.Once

	mtx  sync.Mutex
	errs []error
}

func (t *throttle) Acquire() {
	t.setupOnce.Do(func() { t.ch = make(chan bool, t.Max) })
	t.wg.Add(1)
	t.ch <- true
}

func (t *throttle) Release() {
	t.wg.Done()
	<-t.ch
}

func (t *throttle) Report(err error) {
	if err != nil {
		t.mtx.Lock()
		t.errs = append(t.errs, err)
		t.mtx.Unlock()
	}
}

func (t *throttle) Err() error {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return errors.Join(t.errs...)
}

func (t *throttle) Wait() error {
	t.wg.Wait()
	return t.Err()
}
