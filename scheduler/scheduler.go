package scheduler

import (
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"

	"finz_backend/services"
	"finz_backend/services/alerts"
)

// Job cadences
const (
	AlertEvalIntervalMinutes = 5
	RsiPollIntervalMinutes   = 1
	EventSyncIntervalHours   = 6
	WeeklyReportTime         = "09:00"
)

// Scheduler wires the periodic jobs onto one gocron instance
type Scheduler struct {
	cron     *gocron.Scheduler
	alerts   *alerts.Service
	rsiJob   *RsiJob
	events   *services.EventService
	reports  *services.ReportService
	calendar *MarketCalendar
}

// NewScheduler creates the scheduler. Job times run in the market
// timezone so the weekly report lands Monday morning local time.
func NewScheduler(alertSvc *alerts.Service, rsiJob *RsiJob, eventSvc *services.EventService, reportSvc *services.ReportService, calendar *MarketCalendar) *Scheduler {
	return &Scheduler{
		cron:     gocron.NewScheduler(calendar.Location()),
		alerts:   alertSvc,
		rsiJob:   rsiJob,
		events:   eventSvc,
		reports:  reportSvc,
		calendar: calendar,
	}
}

// Start registers all jobs and starts the scheduler. SingletonMode
// keeps a slow run from overlapping with the next tick of the same
// job.
func (s *Scheduler) Start() {
	log.Info().Msg("Starting scheduler...")

	s.cron.Every(AlertEvalIntervalMinutes).Minutes().SingletonMode().Do(func() {
		if !s.calendar.IsOpen(time.Now()) {
			return
		}
		if err := s.alerts.EvaluateAll(); err != nil {
			log.Error().Err(err).Msg("alert evaluation cycle failed")
		}
	})

	s.cron.Every(RsiPollIntervalMinutes).Minute().SingletonMode().Do(func() {
		if err := s.rsiJob.Run(); err != nil {
			log.Error().Err(err).Msg("rsi polling tick failed")
		}
	})

	s.cron.Every(EventSyncIntervalHours).Hours().SingletonMode().Do(func() {
		if _, err := s.events.SyncEarnings(); err != nil {
			log.Error().Err(err).Msg("event sync failed")
		}
	})

	s.cron.Every(1).Week().Monday().At(WeeklyReportTime).Do(func() {
		if _, err := s.reports.GenerateAndStore(); err != nil {
			log.Error().Err(err).Msg("weekly report generation failed")
		}
	})

	s.cron.StartAsync()
	log.Info().Msg("Scheduler started successfully")
}

// Stop stops the scheduler, letting in-flight jobs finish
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Info().Msg("Scheduler stopped")
}
