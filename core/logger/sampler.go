package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

type ratio struct {
	keep, of uint64
}

// sampler lets keep out of every `of` calls through. A nil ratio lets
// everything through.
type sampler struct {
	ratio atomic.Pointer[ratio]
	seen  atomic.Uint64
}

func newSampler(keep, of int) *sampler {
	s := &sampler{}
	s.Set(keep, of)
	return s
}

// Set replaces the ratio and restarts the window. Non-positive values
// disable sampling.
func (s *sampler) Set(keep, of int) {
	s.seen.Store(0)
	if keep <= 0 || of <= 0 {
		s.ratio.Store(nil)
		return
	}
	s.ratio.Store(&ratio{keep: uint64(min(keep, of)), of: uint64(of)})
}

// Allow reports whether the next call passes.
func (s *sampler) Allow() bool {
	r := s.ratio.Load()
	if r == nil {
		return true
	}
	return (s.seen.Add(1)-1)%r.of < r.keep
}

// parseRatio reads "keep/of" or a bare "of" meaning 1/of. Zero, "off" and
// "all" yield 0/0 which disables sampling; ok is false for garbage.
func parseRatio(spec string) (keep, of int, ok bool) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	switch spec {
	case "off", "all", "0":
		return 0, 0, true
	}
	if a, b, found := strings.Cut(spec, "/"); found {
		k, err1 := strconv.Atoi(strings.TrimSpace(a))
		o, err2 := strconv.Atoi(strings.TrimSpace(b))
		if err1 != nil || err2 != nil || k < 0 || o < 0 {
			return 0, 0, false
		}
		if k == 0 || o == 0 {
			return 0, 0, true
		}
		return k, o, true
	}
	o, err := strconv.Atoi(spec)
	if err != nil || o <= 0 {
		return 0, 0, false
	}
	return 1, o, true
}
