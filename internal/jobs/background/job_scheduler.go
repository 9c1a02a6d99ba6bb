package background

import (
	"context"
	"log"
	"time"

	"billflow/internal/services"

	"github.com/go-co-op/gocron/v2"
)

const sweepBatchSize = 500

// JobScheduler runs the periodic billing sweeps. Every sweep uses singleton
// mode so a slow run is never stacked on top of itself.
type JobScheduler struct {
	scheduler           gocron.Scheduler
	subscriptionService services.SubscriptionService
	invoiceService      services.InvoiceServiceInterface
	jobs                map[string]gocron.Job
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler(subscriptionService services.SubscriptionService, invoiceService services.InvoiceServiceInterface) *JobScheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	js := &JobScheduler{
		scheduler:           scheduler,
		subscriptionService: subscriptionService,
		invoiceService:      invoiceService,
		jobs:                make(map[string]gocron.Job),
	}

	js.registerJobs()

	return js
}

// Start starts the job scheduler
func (js *JobScheduler) Start() error {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
	return nil
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

// registerJobs registers all background jobs
func (js *JobScheduler) registerJobs() {
	// Subscription renewal sweep - every 15 minutes
	renewalJob, err := js.scheduler.NewJob(
		gocron.DurationJob(15*time.Minute),
		gocron.NewTask(js.renewDueSubscriptions),
		gocron.WithName("subscription-renewals"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create renewal job: %v", err)
	} else {
		js.jobs["subscription-renewals"] = renewalJob
	}

	// Grace period expiry sweep - every hour
	graceJob, err := js.scheduler.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(js.expireGracePeriods),
		gocron.WithName("grace-period-expiry"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create grace expiry job: %v", err)
	} else {
		js.jobs["grace-period-expiry"] = graceJob
	}

	// Overdue invoice sweep - every hour
	overdueJob, err := js.scheduler.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(js.markOverdueInvoices),
		gocron.WithName("overdue-invoices"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create overdue invoice job: %v", err)
	} else {
		js.jobs["overdue-invoices"] = overdueJob
	}

	log.Printf("Registered %d background jobs", len(js.jobs))
}

// renewDueSubscriptions rolls billing periods for subscriptions whose
// period ended, and settles deferred cancellations and lapsed trials.
func (js *JobScheduler) renewDueSubscriptions() error {
	ctx := context.Background()
	now := time.Now().UTC()

	processed, err := js.subscriptionService.RenewDue(ctx, now, sweepBatchSize)
	if err != nil {
		log.Printf("Subscription renewal sweep failed: %v", err)
		return err
	}
	if processed > 0 {
		log.Printf("Renewal sweep settled %d subscriptions", processed)
	}
	return nil
}

// expireGracePeriods moves past_due subscriptions whose grace window
// lapsed into unpaid.
func (js *JobScheduler) expireGracePeriods() error {
	ctx := context.Background()
	now := time.Now().UTC()

	processed, err := js.subscriptionService.ExpireGracePeriods(ctx, now, sweepBatchSize)
	if err != nil {
		log.Printf("Grace period sweep failed: %v", err)
		return err
	}
	if processed > 0 {
		log.Printf("Grace period sweep expired %d subscriptions", processed)
	}
	return nil
}

// markOverdueInvoices flips pending invoices past their due date to overdue.
func (js *JobScheduler) markOverdueInvoices() error {
	ctx := context.Background()
	now := time.Now().UTC()

	processed, err := js.invoiceService.MarkOverdueInvoices(ctx, now, sweepBatchSize)
	if err != nil {
		log.Printf("Overdue invoice sweep failed: %v", err)
		return err
	}
	if processed > 0 {
		log.Printf("Overdue sweep marked %d invoices", processed)
	}
	return nil
}

