package pipeline

// regionLoop delivers the latest region to OnRegion.
// Intermediate regions are coalesced by the mailbox.
func (s *Scanner) regionLoop() {
	defer s.wg.Done()

	for {
		update, ok := s.regionBox.Receive()
		if !ok {
			return
		}
		if s.opts.OnRegion != nil {
			s.opts.OnRegion(update)
		}
	}
}

// eventLoop delivers capture results and failures in order.
//
// Deliveries are checked against the coordinator: an event whose cycle
// was reset by the consumer meanwhile is discarded, never surfaced. A new
// Arm after a failed cycle does not dismiss that cycle's failure.
func (s *Scanner) eventLoop() {
	defer s.wg.Done()

	for {
		ev, ok := s.outbox.Receive()
		if !ok {
			return
		}
		s.deliver(ev)
	}
}

func (s *Scanner) deliver(ev event) {
	switch {
	case ev.result != nil:
		r := ev.result
		if s.coord.Dismissed(r.Cycle) {
			s.stats.late.Add(1)
			s.logger.Debug("stale capture discarded", "cycle", r.Cycle, "id", r.ID)
			return
		}
		s.stats.delivered.Add(1)
		if s.opts.OnCapture != nil {
			s.opts.OnCapture(*r)
		}

	case ev.failure != nil:
		f := ev.failure
		if s.coord.Dismissed(f.Cycle) {
			s.stats.late.Add(1)
			s.logger.Debug("stale failure discarded", "cycle", f.Cycle, "error", f.Err)
			return
		}
		s.stats.delivered.Add(1)
		if s.opts.OnFailure != nil {
			s.opts.OnFailure(*f)
		}
	}
}
