// Copyright 2016 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-ethereum.  If not, see <http://www.gnu.org/licenses/>.

// Package mclock is a wrapper for a monotonic clock source.
package mclock

import (
	"sync"
	"time"
)

// AbsTime represents absolute monotonic time.
type AbsTime time.Duration

// Now returns the current absolute monotonic time.
func Now() AbsTime {
	return AbsTime(monotime())
}

// Add returns t + d.
func (t AbsTime) Add(d time.Duration) AbsTime {
	return t + AbsTime(d)
}

// Sub returns t - t2.
func (t AbsTime) Sub(t2 AbsTime) time.Duration {
	return time.Duration(t - t2)
}

// Clock interface makes it possible to replace the monotonic system clock with
// a simulated clock.
type Clock interface {
	Now() AbsTime
	Sleep(time.Duration)
	NewTimer(time.Duration) (<-chan struct{}, func() bool)
	After(time.Duration) <-chan AbsTime
}

// System implements Clock using the system clock.
type System struct{}

// Now returns the current monotonic time.
func (System) Now() AbsTime {
	return Now()
}

// Sleep blocks for the given duration.
func (System) Sleep(d time.Duration) {
	time.Sleep(d)
}

// NewTimer creates a timer that fires after the given duration.
func (System) NewTimer(d time.Duration) (<-chan struct{}, func() bool) {
	timer := time.NewTimer(d)
	ch := make(chan struct{})
	go func() {
		<-timer.C
		close(ch)
	}()
	return ch, timer.Stop
}

// After returns a channel that fires after the given duration.
func (System) After(d time.Duration) <-chan AbsTime {
	ch := make(chan AbsTime, 1)
	t := time.NewTimer(d)
	go func() {
		<-t.C
		ch <- Now()
	}()
	return ch
}

// Simulated implements Clock and allows the current time to be advanced
// manually. Each Simulated instance has an independent clock.
type Simulated struct {
	mu      sync.RWMutex
	now     AbsTime
	waiting []*simTimer
}

type simTimer struct {
	at   AbsTime
	done chan struct{}
	fire func()
}

// Run advances the clock by d, firing any timers that elapse as a result.
func (s *Simulated) Run(d time.Duration) {
	s.mu.Lock()
	end := s.now + AbsTime(d)
	var fire []*simTimer
	remain := s.waiting[:0]
	for _, tm := range s.waiting {
		if tm.at <= end {
			fire = append(fire, tm)
		} else {
			remain = append(remain, tm)
		}
	}
	s.waiting = remain
	s.now = end
	s.mu.Unlock()

	for _, tm := range fire {
		if tm.fire != nil {
			tm.fire()
		}
		close(tm.done)
	}
}

// Now returns the current simulated time.
func (s *Simulated) Now() AbsTime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now
}

// Sleep blocks until the simulated clock has advanced by d.
func (s *Simulated) Sleep(d time.Duration) {
	<-s.After(d)
}

// NewTimer creates a simulated timer.
func (s *Simulated) NewTimer(d time.Duration) (<-chan struct{}, func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tm := &simTimer{at: s.now + AbsTime(d), done: make(chan struct{})}
	s.waiting = append(s.waiting, tm)
	stopped := false
	stop := func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, w := range s.waiting {
			if w == tm {
				s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
				stopped = true
				return true
			}
		}
		return !stopped
	}
	return tm.done, stop
}

// After returns a channel that fires once the simulated clock advances past d.
func (s *Simulated) After(d time.Duration) <-chan AbsTime {
	ch := make(chan AbsTime, 1)
	done, _ := s.NewTimer(d)
	go func() {
		<-done
		ch <- s.Now()
	}()
	return ch
}
