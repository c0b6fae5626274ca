package health

import (
	"sync/atomic"
	"time"

	"github.com/bkviswam/tradeplatform/internal/dispatch"
	"github.com/bkviswam/tradeplatform/internal/scheduler"
)

type SchedulerStatus interface {
	Status() scheduler.Status
}

type DispatchStats interface {
	Stats() dispatch.Stats
}

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	scheduler SchedulerStatus
	dispatch  DispatchStats
}

func NewState(scheduler SchedulerStatus, dispatch DispatchStats) *State {
	return &State{startedAt: time.Now(), scheduler: scheduler, dispatch: dispatch}
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }

type Report struct {
	Ready        bool             `json:"ready"`
	UptimeSec    int64            `json:"uptimeSec"`
	LastTickUnix int64            `json:"lastTickUnix"`
	Scheduler    scheduler.Status `json:"scheduler"`
	Dispatch     dispatch.Stats   `json:"dispatch"`
}

func (s *State) Report() Report {
	r := Report{
		Ready:     s.Ready(),
		UptimeSec: int64(s.Uptime().Seconds()),
	}
	if s.scheduler != nil {
		r.Scheduler = s.scheduler.Status()
		if !r.Scheduler.LastTick.IsZero() {
			r.LastTickUnix = r.Scheduler.LastTick.Unix()
		}
	}
	if s.dispatch != nil {
		r.Dispatch = s.dispatch.Stats()
	}
	return r
}
