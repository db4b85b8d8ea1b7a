package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/you/hockey-training/internal/domain"
	"github.com/you/hockey-training/internal/notify"
)

// slotBooker is the slice of BookingSvc the schedule manager drives when it
// auto-books the first occurrence of a new commitment.
type slotBooker interface {
	Book(ctx context.Context, req BookRequest) (*BookResult, error)
}

// ScheduleSvc manages standing weekly commitments and their auto-bookings.
type ScheduleSvc struct {
	schedules ScheduleStore
	booker    slotBooker
	pub       EventPublisher
	log       *zap.Logger

	// now is swappable in tests; defaults to time.Now.
	now func() time.Time
}

func NewScheduleSvc(schedules ScheduleStore, booker slotBooker, pub EventPublisher, log *zap.Logger) *ScheduleSvc {
	return &ScheduleSvc{schedules: schedules, booker: booker, pub: pub, log: log, now: time.Now}
}

type CreateScheduleRequest struct {
	OwnerID        string
	RegistrationID string
	SessionType    domain.SessionType
	DayOfWeek      string
	TimeSlot       string
}

type FirstBooking struct {
	Success     bool       `json:"success"`
	Message     string     `json:"message"`
	BookingDate *time.Time `json:"booking_date,omitempty"`
}

type ScheduleResult struct {
	Schedule     *domain.RecurringSchedule `json:"schedule"`
	FirstBooking FirstBooking              `json:"first_booking"`
}

// Create registers the weekly commitment and, when the next occurrence is
// within the auto-book horizon, attempts the first booking immediately. An
// auto-booking failure never fails schedule creation: the schedule stands
// and the response names the date booking will resume from.
func (s *ScheduleSvc) Create(ctx context.Context, req CreateScheduleRequest) (*ScheduleResult, error) {
	wd, err := domain.ParseDayOfWeek(req.DayOfWeek)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sched := &domain.RecurringSchedule{
		OwnerID:         req.OwnerID,
		RegistrationID:  req.RegistrationID,
		SessionType:     req.SessionType,
		DayOfWeek:       domain.CanonicalDayOfWeek(req.DayOfWeek),
		TimeSlot:        req.TimeSlot,
		IsActive:        true,
		NextBookingDate: domain.NextOccurrence(now, wd),
	}
	if err := s.schedules.Create(ctx, sched); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrScheduleConflict
		}
		return nil, err
	}

	first := s.tryFirstBooking(ctx, sched, now)

	if perr := s.pub.PublishJSON(ctx, notify.RKScheduleCreated, notify.ScheduleCreated{
		ScheduleID:  sched.ID,
		OwnerID:     sched.OwnerID,
		DayOfWeek:   sched.DayOfWeek,
		TimeSlot:    sched.TimeSlot,
		FirstBooked: first.Success,
		Message:     first.Message,
	}); perr != nil {
		s.log.Warn("publish schedule.created failed", zap.Error(perr))
	}

	return &ScheduleResult{Schedule: sched, FirstBooking: first}, nil
}

func (s *ScheduleSvc) tryFirstBooking(ctx context.Context, sched *domain.RecurringSchedule, now time.Time) FirstBooking {
	target := sched.NextBookingDate
	if target.Sub(domain.DateOnly(now)) > domain.AutoBookHorizon {
		return FirstBooking{
			Success: false,
			Message: fmt.Sprintf("next occurrence %s is beyond the booking window; auto-booking will resume from that date",
				target.Format("2006-01-02")),
		}
	}

	res, err := s.booker.Book(ctx, BookRequest{
		OwnerID:             sched.OwnerID,
		RegistrationID:      sched.RegistrationID,
		SessionType:         sched.SessionType,
		Date:                target,
		TimeSlot:            sched.TimeSlot,
		IsRecurring:         true,
		RecurringScheduleID: &sched.ID,
	})
	if err != nil {
		// Non-fatal: the schedule stands, booking resumes from the date.
		s.log.Info("schedule auto-booking failed",
			zap.String("schedule_id", sched.ID),
			zap.Time("date", target),
			zap.Error(err))
		return FirstBooking{
			Success: false,
			Message: fmt.Sprintf("could not book %s (%v); auto-booking will resume from %s",
				target.Format("2006-01-02"), err, target.Format("2006-01-02")),
		}
	}

	booked := res.BookingDate
	sched.LastBookedDate = &booked
	sched.NextBookingDate = booked.AddDate(0, 0, 7)
	if err := s.schedules.Save(ctx, sched); err != nil {
		s.log.Error("schedule advance failed after auto-booking",
			zap.String("schedule_id", sched.ID), zap.Error(err))
	}
	return FirstBooking{
		Success:     true,
		Message:     fmt.Sprintf("booked %s", booked.Format("2006-01-02")),
		BookingDate: &booked,
	}
}

// AdvanceAfterBooking moves the schedule one week forward after a
// successful booking on its current target date.
func (s *ScheduleSvc) AdvanceAfterBooking(ctx context.Context, scheduleID string, bookedDate time.Time) error {
	sched, err := s.schedules.ByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	d := domain.DateOnly(bookedDate)
	sched.LastBookedDate = &d
	sched.NextBookingDate = d.AddDate(0, 0, 7)
	return s.schedules.Save(ctx, sched)
}

// Pause deactivates the schedule, recording why. NextBookingDate is left
// untouched; Resume recomputes it.
func (s *ScheduleSvc) Pause(ctx context.Context, scheduleID, reason string) (*domain.RecurringSchedule, error) {
	sched, err := s.schedules.ByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sched.IsActive = false
	sched.PausedReason = reason
	if err := s.schedules.Save(ctx, sched); err != nil {
		return nil, err
	}
	return sched, nil
}

// Resume reactivates a paused schedule and recomputes the next occurrence
// from today.
func (s *ScheduleSvc) Resume(ctx context.Context, scheduleID string) (*domain.RecurringSchedule, error) {
	sched, err := s.schedules.ByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	wd, err := domain.ParseDayOfWeek(sched.DayOfWeek)
	if err != nil {
		return nil, err
	}
	sched.IsActive = true
	sched.PausedReason = ""
	sched.NextBookingDate = domain.NextOccurrence(s.now(), wd)
	if err := s.schedules.Save(ctx, sched); err != nil {
		return nil, err
	}
	return sched, nil
}

func (s *ScheduleSvc) ListByOwner(ctx context.Context, ownerID string) ([]domain.RecurringSchedule, error) {
	return s.schedules.ListByOwner(ctx, ownerID)
}
