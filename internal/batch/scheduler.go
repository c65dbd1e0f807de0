package batch

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs conversion profiles on their cron schedules
type Scheduler struct {
	profiles map[string]Profile
	lastRun  map[string]time.Time
	running  map[string]bool
	mu       sync.RWMutex
	stopChan chan struct{}
	logger   *zap.Logger
}

// NewScheduler creates a scheduler for the given profiles.
//
// Precondition: logger must be non-nil.
func NewScheduler(profiles []Profile, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		profiles: make(map[string]Profile),
		lastRun:  make(map[string]time.Time),
		running:  make(map[string]bool),
		stopChan: make(chan struct{}),
		logger:   logger,
	}

	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		s.profiles[p.Name] = p
	}

	return s, nil
}

// NextRun returns the next scheduled run time for a profile
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[name]
	if !ok {
		return time.Time{}
	}

	sched, err := ParseSchedule(p.Schedule)
	if err != nil {
		return time.Time{}
	}

	return sched.Next(time.Now())
}

// ShouldRun returns true if a profile is due now
func (s *Scheduler) ShouldRun(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[name]
	if !ok || !p.IsEnabled() {
		return false
	}

	if s.running[name] {
		return false
	}

	sched, err := ParseSchedule(p.Schedule)
	if err != nil {
		return false
	}

	lastRun := s.lastRun[name]
	if lastRun.IsZero() {
		lastRun = time.Now().Add(-24 * time.Hour)
	}

	nextRun := sched.Next(lastRun)
	return time.Now().After(nextRun)
}

// MarkRunning marks a profile as currently running
func (s *Scheduler) MarkRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = true
}

// MarkComplete marks a profile run as complete
func (s *Scheduler) MarkComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = time.Now()
}

// GetProfile returns the profile with the given name
func (s *Scheduler) GetProfile(name string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[name]
	return p, ok
}

// ListProfiles returns all profile names, sorted
func (s *Scheduler) ListProfiles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start begins the scheduler loop. It blocks until Stop is called, checking
// once a minute for due profiles and running each in its own goroutine.
func (s *Scheduler) Start(runFunc func(Profile) error) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			for name := range s.profiles {
				if s.ShouldRun(name) {
					p, _ := s.GetProfile(name)
					s.MarkRunning(name)
					s.logger.Info("profile due",
						zap.String("profile", p.Name),
						zap.String("input_dir", p.InputDir))
					go func(p Profile) {
						if err := runFunc(p); err != nil {
							s.logger.Error("profile run failed",
								zap.String("profile", p.Name),
								zap.Error(err))
						}
						s.MarkComplete(p.Name)
					}(p)
				}
			}
		}
	}
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
}
