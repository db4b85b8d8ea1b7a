package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/you/hockey-training/internal/domain"
	"github.com/you/hockey-training/internal/notify"
)

// ConflictSvc is the subscription path's race-closer: immediately before a
// registration's payment is marked succeeded, it re-scans every *other*
// confirmed registration for day/time conflicts. Two checkouts that started
// concurrently for the same slot both pass the initial availability check;
// whichever verifies second fails here.
type ConflictSvc struct {
	regs RegistrationStore
	pub  EventPublisher
	log  *zap.Logger
}

func NewConflictSvc(regs RegistrationStore, pub EventPublisher, log *zap.Logger) *ConflictSvc {
	return &ConflictSvc{regs: regs, pub: pub, log: log}
}

type VerifyResult struct {
	RegistrationID string `json:"registration_id"`
	PaymentStatus  string `json:"payment_status"`
	RefundRequired bool   `json:"refund_required,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// VerifyAndConfirm validates the registration's program against already
// confirmed registrations and marks its payment succeeded when clear. On
// conflict the status becomes slot_unavailable and the captured payment
// must be refunded through the gateway — that is the caller's signal, not
// this engine's action.
func (s *ConflictSvc) VerifyAndConfirm(ctx context.Context, registrationID string) (*VerifyResult, error) {
	reg, err := s.regs.ByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	program, err := reg.Program()
	if err != nil {
		return nil, fmt.Errorf("registration %s: %w", registrationID, err)
	}

	others, err := s.regs.ListConfirmedExcept(ctx, registrationID)
	if err != nil {
		return nil, err
	}

	reason := s.findConflict(program, others)
	if reason != "" {
		if err := s.regs.SetPaymentStatus(ctx, registrationID, domain.PaymentSlotUnavailable); err != nil {
			return nil, err
		}
		s.log.Info("registration rejected at verification",
			zap.String("registration_id", registrationID),
			zap.String("reason", reason))
		if perr := s.pub.PublishJSON(ctx, notify.RKSlotUnavailable, notify.SlotUnavailable{
			RegistrationID: registrationID,
			Reason:         reason,
			RefundRequired: true,
		}); perr != nil {
			s.log.Warn("publish slot_unavailable failed", zap.Error(perr))
		}
		return &VerifyResult{
			RegistrationID: registrationID,
			PaymentStatus:  string(domain.PaymentSlotUnavailable),
			RefundRequired: true,
			Reason:         reason,
		}, ErrSlotUnavailable
	}

	if err := s.regs.SetPaymentStatus(ctx, registrationID, domain.PaymentSucceeded); err != nil {
		return nil, err
	}
	return &VerifyResult{
		RegistrationID: registrationID,
		PaymentStatus:  string(domain.PaymentSucceeded),
	}, nil
}

// findConflict returns a human-readable reason, or "" when the program fits.
func (s *ConflictSvc) findConflict(p domain.ProgramSelection, others []domain.RegistrationRecord) string {
	switch p.Type {
	case domain.ProgramGroup:
		for _, day := range p.GroupDays {
			count := 0
			for i := range others {
				op, err := others[i].Program()
				if err != nil {
					continue
				}
				if op.Type == domain.ProgramGroup && containsDay(op.GroupDays, day) {
					count++
				}
			}
			if count >= domain.SessionGroup.MaxCapacity() {
				return fmt.Sprintf("group sessions on %s are full", day)
			}
		}
	case domain.ProgramPrivate, domain.ProgramSemiPrivate:
		for i := range others {
			op, err := others[i].Program()
			if err != nil {
				continue
			}
			if op.Type != domain.ProgramPrivate && op.Type != domain.ProgramSemiPrivate {
				continue
			}
			if strings.EqualFold(op.Day, p.Day) && domain.SameTimeSlot(op.TimeSlot, p.TimeSlot) {
				return fmt.Sprintf("%s at %s is already taken by a confirmed %s registration",
					p.Day, p.TimeSlot, op.Type)
			}
		}
	}
	return ""
}

func containsDay(days []string, day string) bool {
	for _, d := range days {
		if strings.EqualFold(d, day) {
			return true
		}
	}
	return false
}
