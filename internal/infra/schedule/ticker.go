// Package schedule runs the periodic callbacks behind session timers.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"studybuddy-client/internal/logger"
)

// Ticker implements app.Ticker on a shared cron scheduler. Intervals below
// one second run every second.
type Ticker struct {
	cron *cron.Cron
	log  *logger.Logger
}

func NewTicker(log *logger.Logger) *Ticker {
	if log == nil {
		log = logger.Nop()
	}
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{log})))
	c.Start()
	return &Ticker{cron: c, log: log}
}

// Every schedules fn and returns a function that unschedules it.
func (t *Ticker) Every(interval time.Duration, fn func()) func() {
	id, err := t.cron.AddFunc(fmt.Sprintf("@every %s", interval), fn)
	if err != nil {
		t.log.Error("schedule ticker", "interval", interval.String(), "error", err)
		return func() {}
	}
	return func() { t.cron.Remove(id) }
}

// Stop halts the scheduler and waits for running callbacks to return.
func (t *Ticker) Stop() {
	<-t.cron.Stop().Done()
}

// Jobs returns the number of scheduled callbacks.
func (t *Ticker) Jobs() int {
	return len(t.cron.Entries())
}

type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
