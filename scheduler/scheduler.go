package scheduler

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scada-io/iec104"
)

// tickInterval is how often the scheduler drains the session and advances
// every block's interrogation timer. It is an implementation cadence, not a
// protocol parameter.
const tickInterval = 100 * time.Millisecond

// Scheduler owns every Block attached to one Session and performs the
// single session-wide dequeue that §4.5 requires: each drained ASDU is
// handed to every block so blocks addressed to a different CA can still see
// (and ignore) it without starving each other of the queue.
type Scheduler struct {
	session *iec104.Session
	lg      *logrus.Logger

	mu     sync.Mutex
	blocks []*Block

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Scheduler bound to session.
func New(session *iec104.Session, lg *logrus.Logger) *Scheduler {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	return &Scheduler{session: session, lg: lg}
}

// AddBlock registers and returns a new Block under this scheduler.
func (s *Scheduler) AddBlock(cfg Config) *Block {
	b := NewBlock(s.session, cfg)
	s.mu.Lock()
	s.blocks = append(s.blocks, b)
	s.mu.Unlock()
	return b
}

// Blocks returns the currently registered blocks.
func (s *Scheduler) Blocks() []*Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Block, len(s.blocks))
	copy(out, s.blocks)
	return out
}

// Run starts the scheduler's background loop. It returns immediately; call
// Stop to halt it.
func (s *Scheduler) Run() {
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.loop()
}

// Stop halts the background loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.stopCh != nil {
		close(s.stopCh)
	}
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.drainAndFeed()
			s.tickBlocks()
		}
	}
}

func (s *Scheduler) drainAndFeed() {
	asdus := s.session.DequeueReceivedASDUs()
	if len(asdus) == 0 {
		return
	}
	for _, b := range s.Blocks() {
		for _, a := range asdus {
			b.Feed(a)
		}
	}
}

func (s *Scheduler) tickBlocks() {
	now := time.Now()
	for _, b := range s.Blocks() {
		b.tick(now)
	}
}
