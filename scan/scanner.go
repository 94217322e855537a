// Package scan runs regex scans over the container text under a deadline.
//
// Go's regexp engine executes in time linear in the input, so a scan cannot
// backtrack catastrophically; the deadline exists as a hard bound anyway, so
// that an adversarial container surfaces as errs.ErrRegexTimeout in the pass
// log instead of a wedged process. On timeout the abandoned scan finishes in
// the background and its result is discarded.
package scan

import (
	"regexp"
	"time"

	"github.com/plckit/plfaddr/errs"
)

// DefaultTimeout bounds a single regex scan over the whole container.
const DefaultTimeout = 10 * time.Second

// Scanner executes regex scans with a per-scan deadline.
type Scanner struct {
	timeout time.Duration
}

// New creates a Scanner. A non-positive timeout falls back to DefaultTimeout.
func New(timeout time.Duration) *Scanner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Scanner{timeout: timeout}
}

// FindAllIndex returns the start/end pairs of every match of re in text, or
// errs.ErrRegexTimeout if the scan misses its deadline.
func (s *Scanner) FindAllIndex(re *regexp.Regexp, text string) ([][]int, error) {
	return s.run(func() [][]int {
		return re.FindAllStringIndex(text, -1)
	})
}

// FindAllSubmatchIndex returns the submatch index groups of every match of re
// in text, or errs.ErrRegexTimeout on deadline miss.
func (s *Scanner) FindAllSubmatchIndex(re *regexp.Regexp, text string) ([][]int, error) {
	return s.run(func() [][]int {
		return re.FindAllStringSubmatchIndex(text, -1)
	})
}

// FindSubmatchIndex returns the submatch indices of the first match of re in
// text, nil when there is no match, or errs.ErrRegexTimeout on deadline miss.
func (s *Scanner) FindSubmatchIndex(re *regexp.Regexp, text string) ([]int, error) {
	res, err := s.run(func() [][]int {
		m := re.FindStringSubmatchIndex(text)
		if m == nil {
			return nil
		}

		return [][]int{m}
	})
	if err != nil || len(res) == 0 {
		return nil, err
	}

	return res[0], nil
}

func (s *Scanner) run(fn func() [][]int) ([][]int, error) {
	done := make(chan [][]int, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case m := <-done:
		return m, nil
	case <-timer.C:
		return nil, errs.ErrRegexTimeout
	}
}
