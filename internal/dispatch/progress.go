package dispatch

import (
	"time"

	"rosterbot/pkg/logx"
)

// trackCompletion records one job outcome for a document and, once the
// document has received its expected number of outcomes, classifies it
// and fires exactly one terminal callback.
//
// A completion for an id without a progress record is dropped: a
// recently finalized id means a late or duplicate completion (a race
// to tolerate, logged at warn), anything else points at an upstream
// bug (logged at error). Neither creates state or fires a callback.
func (s *Service) trackCompletion(docID string, out Outcome) {
	threshold := s.config().FailThreshold

	var summary Summary
	final := false

	q := s.store
	q.mu.Lock()
	rec, ok := q.progress[docID]
	if !ok {
		_, late := q.finalized[docID]
		q.mu.Unlock()
		if late {
			s.log.Warn("late completion after document finalize; dropping",
				logx.String("doc", docID), logx.String("label", out.Label))
		} else {
			s.log.Error("completion for unknown document; dropping",
				logx.String("doc", docID), logx.String("label", out.Label))
		}
		return
	}

	rec.results = append(rec.results, out)
	rec.completed++
	q.totalCompleted++
	if !out.Success {
		rec.failed++
		q.totalFailed++
	}

	if rec.completed >= rec.expected {
		final = true
		summary = Summary{
			DocumentID: docID,
			Owner:      rec.owner,
			Results:    append([]Outcome(nil), rec.results...),
			Completed:  rec.completed,
			Failed:     rec.failed,
		}
		delete(q.progress, docID)
		q.markFinalized(docID, time.Now())
	}
	q.mu.Unlock()

	if !final {
		return
	}

	if summary.Failed >= threshold {
		s.log.Warn("document failed",
			logx.String("doc", docID),
			logx.Int("completed", summary.Completed),
			logx.Int("failed", summary.Failed),
			logx.Int("threshold", threshold))
		if s.cb.OnDocumentFailed != nil {
			s.cb.OnDocumentFailed(summary)
		}
		return
	}

	s.log.Info("document completed",
		logx.String("doc", docID),
		logx.Int("completed", summary.Completed),
		logx.Int("failed", summary.Failed))
	if s.cb.OnDocumentCompleted != nil {
		s.cb.OnDocumentCompleted(summary)
	}
}
