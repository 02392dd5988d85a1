// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpq

import (
	"context"
	"fmt"
	"io"

	"github.com/gogama/httpq/accesspoint"
	"github.com/gogama/httpq/request"
	"github.com/sirupsen/logrus"
)

// probe finds an access point which reaches the probe URL. Until it
// is done, workers only run probe Requests.
func (s *Scheduler) probe() {
	defer s.bg.Done()

	err := s.findAccessPoint()
	if err != nil {
		s.log.WithError(err).Error("access point probe failed")
	}

	s.mu.Lock()
	s.probing = false
	s.probeErr = err
	s.cond.Broadcast()
	s.mu.Unlock()
	close(s.probed)
}

func (s *Scheduler) findAccessPoint() error {
	sw := s.cfg.AccessPoints
	if s.probeOnce() {
		if ap, ok := active(sw); ok {
			s.setAccessPoint(ap)
		}
		return nil
	}

	aps, err := sw.AccessPoints(s.ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoAccessPoint, err)
	}
	accesspoint.Sort(aps)
	for _, ap := range aps {
		if s.ctx.Err() != nil {
			return ErrClosed
		}
		log := s.log.WithFields(logrus.Fields{
			"access_point": ap.Name,
			"kind":         ap.Kind,
		})
		if err := sw.Switch(s.ctx, ap); err != nil {
			log.WithError(err).Warn("cannot switch access point")
			continue
		}
		if s.probeOnce() {
			s.setAccessPoint(ap)
			log.Info("access point selected")
			return nil
		}
		log.Debug("access point probe failed")
	}
	return ErrNoAccessPoint
}

// active returns the access point sw currently uses, if sw can tell.
func active(sw accesspoint.Switcher) (accesspoint.AccessPoint, bool) {
	type activer interface {
		Active() (accesspoint.AccessPoint, bool)
	}
	if a, ok := sw.(activer); ok {
		return a.Active()
	}
	return accesspoint.AccessPoint{}, false
}

func (s *Scheduler) setAccessPoint(ap accesspoint.AccessPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ap = &ap
}

// probeOnce fetches the probe URL through the queue and reports
// whether it succeeded.
func (s *Scheduler) probeOnce() bool {
	r, err := request.New("GET", s.cfg.ProbeURL)
	if err != nil {
		return false
	}
	r.Priority = request.Critical
	r.DuplicateTolerant = true
	r.FollowRedirects = false
	fail := func(*request.Execution) request.Action { return request.Fail }
	r.Hooks.OnError = fail
	r.Hooks.OnIOFailure = func(e *request.Execution, _ error) request.Action { return request.Fail }
	r.Hooks.OnFault = func(e *request.Execution, _ interface{}) request.Action { return request.Fail }
	r.Hooks.OnResponse = func(_ *request.Execution, body io.Reader) error {
		_, err := io.Copy(io.Discard, body)
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.pending.push(entry{r: r, prio: request.Critical, probe: true})
	r.SetState(request.StateQueued)
	s.cond.Broadcast()
	s.mu.Unlock()

	_, err = s.Wait(s.ctx, r)
	return err == nil
}

// Probed returns a channel which is closed once the access point probe
// is over, or straight away if the Scheduler does not probe.
func (s *Scheduler) Probed() <-chan struct{} {
	return s.probed
}

// WaitProbe waits for the access point probe to end and returns its
// error.
func (s *Scheduler) WaitProbe(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	select {
	case <-s.probed:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.ProbeErr()
}

// ProbeErr returns the error of the access point probe, or nil if it
// succeeded or has not finished.
func (s *Scheduler) ProbeErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probeErr
}

// AccessPoint returns the access point chosen by the probe, if any.
func (s *Scheduler) AccessPoint() (accesspoint.AccessPoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ap == nil {
		return accesspoint.AccessPoint{}, false
	}
	return *s.ap, true
}
