package supervisor

import (
	"context"
	"time"

	"github.com/watchloop/autopilot/internal/classifier"
	"github.com/watchloop/autopilot/internal/domain"
	"github.com/watchloop/autopilot/internal/lock"
)

// scheduleAckCheck launches a bounded-concurrency background observation of
// one injected action's effect, per spec §4.G's post-action ack check: up to
// AckTimeout watching for HEAD movement, a transition out of "working", or a
// changed context percentage; a single "no-ack" log line if none of those
// happen. The semaphore caps in-flight checks at AckConcurrency so a burst of
// simultaneous actions across many projects can't pile up unbounded
// goroutines.
func (s *Supervisor) scheduleAckCheck(project domain.Project, action domain.ActionKind, before domain.ClassifierRecord) {
	if !s.ackSem.TryAcquire(1) {
		// At capacity: skip this ack check rather than block the tick loop.
		// A missed ack check only costs a log line, never correctness.
		return
	}
	s.ackWG.Add(1)

	go func() {
		defer s.ackWG.Done()
		defer s.ackSem.Release(1)
		s.runAckCheck(project, action, before)
	}()
}

// waitForAckChecks waits up to timeout for in-flight ack checks to finish,
// then returns regardless -- shutdown never blocks indefinitely on a
// best-effort background observation (spec §4.G: "wait ~2s then force").
func (s *Supervisor) waitForAckChecks(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.ackWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

func (s *Supervisor) runAckCheck(project domain.Project, action domain.ActionKind, before domain.ClassifierRecord) {
	key := project.Key
	lockPath := s.lockDir + "/ack-" + key + ".lock.d"
	held, err := lock.Acquire(lockPath, 120)
	if err != nil {
		return
	}
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AckTimeout)
	defer cancel()

	beforeHead, _ := s.state.ReadScalar("watchdog-commits/" + key + "-head")
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Warn().Str("window", project.Window).Str("action", string(action)).
				Dur("timeout", s.cfg.AckTimeout).Msg("no acknowledgment observed after action")
			return
		case <-ticker.C:
		}

		rec, err := classifier.Classify(s.mux, s.cfg.SessionName, project.Window, s.cfg.Classifier)
		if err != nil {
			continue
		}

		head, _ := s.state.ReadScalar("watchdog-commits/" + key + "-head")
		if head != beforeHead {
			return
		}
		if rec.Status == domain.StatusWorking && before.Status != domain.StatusWorking {
			return
		}
		if rec.ContextPct != domain.UnknownContext && rec.ContextPct != before.ContextPct {
			return
		}
	}
}
