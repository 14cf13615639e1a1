package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/venicegeo/bf-vegindex/util"
)

// DefaultSweepSchedule runs the janitor every five minutes
const DefaultSweepSchedule = "@every 5m"

// Janitor periodically sweeps idle sessions out of a Store
type Janitor struct {
	store   Store
	maxIdle time.Duration
	cron    *cron.Cron
	logCtx  util.LogContext
}

// NewJanitor schedules sweeps of store on a cron schedule
func NewJanitor(store Store, maxIdle time.Duration, schedule string) (*Janitor, error) {
	j := &Janitor{
		store:   store,
		maxIdle: maxIdle,
		cron:    cron.New(),
		logCtx:  &util.BasicLogContext{},
	}
	if _, err := j.cron.AddFunc(schedule, j.Run); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %v", schedule, err)
	}
	return j, nil
}

// Start begins the schedule in its own goroutine
func (j *Janitor) Start() {
	util.LogInfo(j.logCtx, fmt.Sprintf("Session janitor started, max idle %v", j.maxIdle))
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Run performs one sweep
func (j *Janitor) Run() {
	removed, err := j.store.Sweep(context.Background(), j.maxIdle)
	if err != nil {
		util.LogSimpleErr(j.logCtx, "Session sweep failed", err)
		return
	}
	if removed > 0 {
		util.LogInfo(j.logCtx, fmt.Sprintf("Expired %d idle sessions", removed))
	}
}
