package stats

import "time"

func (s *Sink) SetNow(fn func() time.Time) { s.now = fn }
