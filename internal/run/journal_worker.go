package run

import (
	"context"

	"parley/internal/journal"
)

// journalWorker appends queued records until ctx ends, then flushes what is
// already queued.
func (s *Server) journalWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case rec := <-s.journalCh:
					s.appendRecord(rec)
				default:
					return
				}
			}
		case rec := <-s.journalCh:
			s.appendRecord(rec)
		}
	}
}

func (s *Server) appendRecord(rec journal.Record) {
	if err := s.journal.Append(rec); err != nil {
		s.logger.Errorf("journal: %v", err)
		return
	}
	s.metrics.incJournaled()
}
