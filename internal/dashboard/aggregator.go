package dashboard

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/ehr-terminal/internal/model"
)

// ErrDiscarded is returned when the caller went away before every
// fetch settled. The partial result must not be shown.
var ErrDiscarded = errors.New("dashboard load discarded")

// Dashboard fields, as named in DashboardSummary.Fallbacks.
const (
	FieldStats         = "stats"
	FieldAppointments  = "appointments"
	FieldPatients      = "patients"
	FieldPrescriptions = "prescriptions"
	FieldHealthMetrics = "healthMetrics"
)

// Fetcher reads dashboard data from the backend. *api.Client satisfies
// it.
type Fetcher interface {
	Stats(ctx context.Context, role model.Role) (model.Stats, error)
	RoleAppointments(ctx context.Context, role model.Role) ([]model.Appointment, error)
	Patients(ctx context.Context) ([]model.Patient, error)
	Prescriptions(ctx context.Context) ([]model.Prescription, error)
	HealthMetrics(ctx context.Context) (model.HealthMetrics, error)
}

// Aggregator loads every field of a dashboard concurrently. A failed
// field falls back to a static value without affecting the others.
type Aggregator struct {
	fetch   Fetcher
	timeout time.Duration
	log     logrus.FieldLogger
}

// New returns an Aggregator. timeout bounds each fetch; zero means the
// caller's context alone bounds them.
func New(fetch Fetcher, timeout time.Duration, log logrus.FieldLogger) *Aggregator {
	return &Aggregator{fetch: fetch, timeout: timeout, log: log}
}

// Load fetches every field for sess's role and returns once all of them
// settled. It never fails because of a backend error; it only fails
// with ErrDiscarded when ctx ends first.
func (a *Aggregator) Load(ctx context.Context, sess model.Session) (model.DashboardSummary, error) {
	role := sess.Role
	sum := model.DashboardSummary{Role: role}

	var (
		g      errgroup.Group
		fields []string
		failed []*bool
	)

	// run starts one fetch. Each goroutine writes only its own summary
	// field and its own failure flag; both are read after Wait.
	run := func(field string, fn func(ctx context.Context) error) {
		flag := new(bool)
		fields = append(fields, field)
		failed = append(failed, flag)
		g.Go(func() error {
			fctx, cancel := a.fieldContext(ctx)
			defer cancel()
			if err := fn(fctx); err != nil {
				*flag = true
				if ctx.Err() == nil {
					a.log.WithError(err).WithFields(logrus.Fields{
						"field": field,
						"role":  role,
					}).Warn("dashboard fetch failed, using fallback")
				}
			}
			return nil
		})
	}

	run(FieldStats, func(ctx context.Context) error {
		stats, err := a.fetch.Stats(ctx, role)
		if err != nil {
			sum.Stats = StatsFallback(role)
			return err
		}
		sum.Stats = stats
		return nil
	})
	run(FieldAppointments, func(ctx context.Context) error {
		appts, err := a.fetch.RoleAppointments(ctx, role)
		if err != nil {
			sum.Appointments = AppointmentsFallback(role)
			return err
		}
		sum.Appointments = appts
		return nil
	})

	switch role {
	case model.RoleDoctor:
		run(FieldPatients, func(ctx context.Context) error {
			patients, err := a.fetch.Patients(ctx)
			if err != nil {
				sum.Patients = []model.Patient{}
				return err
			}
			sum.Patients = patients
			return nil
		})
	case model.RolePatient:
		run(FieldPrescriptions, func(ctx context.Context) error {
			rx, err := a.fetch.Prescriptions(ctx)
			if err != nil {
				sum.Prescriptions = []model.Prescription{}
				return err
			}
			sum.Prescriptions = rx
			return nil
		})
		run(FieldHealthMetrics, func(ctx context.Context) error {
			hm, err := a.fetch.HealthMetrics(ctx)
			if err != nil {
				sum.HealthMetrics = model.HealthMetrics{}
				return err
			}
			sum.HealthMetrics = hm
			return nil
		})
	}

	_ = g.Wait()

	if ctx.Err() != nil {
		return model.DashboardSummary{}, ErrDiscarded
	}

	for i, field := range fields {
		if *failed[i] {
			sum.Fallbacks = append(sum.Fallbacks, field)
		}
	}
	return sum, nil
}

func (a *Aggregator) fieldContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

// Adherence is the share of scheduled doses marked taken, as a rounded
// percentage. An empty history is 0.
func Adherence(history []model.MedicationDay) int {
	taken, total := 0, 0
	for _, day := range history {
		for _, dose := range day.Doses {
			total++
			if dose.Status == model.DoseTaken {
				taken++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(taken) / float64(total) * 100))
}

// Adherence bands.
const (
	BandGood = "good"
	BandFair = "fair"
	BandPoor = "poor"
)

// AdherenceBand classifies an adherence percentage.
func AdherenceBand(pct int) string {
	switch {
	case pct >= 80:
		return BandGood
	case pct >= 50:
		return BandFair
	default:
		return BandPoor
	}
}
