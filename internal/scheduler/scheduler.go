// Package scheduler drives the two in-process evaluation beats for
// single-node deployments. The HTTP trigger endpoints remain the
// authoritative path; cron calls the same driver.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/maintly/pm-engine/internal/pm"
)

// Scheduler runs the daily full pass and the recurring meter pass.
type Scheduler struct {
	cron *cron.Cron
}

// New registers both beats on a fresh cron. Specs use standard cron syntax
// or descriptors like "@daily".
func New(driver *pm.Driver, fullSpec, meterSpec string, lookaheadDays int) (*Scheduler, error) {
	c := cron.New()

	if _, err := c.AddFunc(fullSpec, func() {
		result, err := driver.RunFull(context.Background(), lookaheadDays, false)
		if err != nil {
			log.WithError(err).Error("Scheduled full pass failed")
			return
		}
		log.WithFields(log.Fields{
			"organizations_processed":   result.OrganizationsProcessed,
			"total_pm_orders_generated": result.TotalPMOrdersGenerated,
		}).Info("Scheduled full pass finished")
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc(meterSpec, func() {
		result, err := driver.RunMeterPass(context.Background(), false)
		if err != nil {
			log.WithError(err).Error("Scheduled meter pass failed")
			return
		}
		log.WithFields(log.Fields{
			"organizations_processed":   result.OrganizationsProcessed,
			"total_pm_orders_generated": result.TotalPMOrdersGenerated,
		}).Info("Scheduled meter pass finished")
	}); err != nil {
		return nil, err
	}

	return &Scheduler{cron: c}, nil
}

// Start begins running the beats in their own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the cron scheduler; running jobs finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
