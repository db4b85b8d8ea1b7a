package repository

import (
	"context"
	"testing"
	"time"

	"github.com/you/hockey-training/internal/domain"
)

var slotDate = time.Date(2025, 4, 8, 0, 0, 0, 0, time.UTC) // a Tuesday

func mkBooking(reg string, status domain.BookingStatus) *domain.SessionBooking {
	return &domain.SessionBooking{
		OwnerID:        "owner-b",
		RegistrationID: reg,
		SessionType:    domain.SessionGroup,
		SessionDate:    slotDate,
		TimeSlot:       "6:00 PM",
		Status:         status,
	}
}

func TestSlotCapacityCountsActiveOnly(t *testing.T) {
	db := setupTestDB(t)
	r := NewBookingRepo(db)
	ctx := context.Background()

	for _, b := range []*domain.SessionBooking{
		mkBooking("reg-1", domain.BookingConfirmed),
		mkBooking("reg-2", domain.BookingAttended),
		mkBooking("reg-3", domain.BookingCancelled),
	} {
		if err := r.Create(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	cap, err := r.SlotCapacity(ctx, slotDate, "6:00 PM", domain.SessionGroup, 3)
	if err != nil {
		t.Fatal(err)
	}
	if cap.CurrentBookings != 2 {
		t.Fatalf("cancelled bookings must not count: got %d want 2", cap.CurrentBookings)
	}
	if !cap.IsAvailable || cap.AvailableSpots != 1 {
		t.Fatalf("expected 1 spot available, got %+v", cap)
	}

	cap, err = r.SlotCapacity(ctx, slotDate, "6:00 PM", domain.SessionGroup, 2)
	if err != nil {
		t.Fatal(err)
	}
	if cap.IsAvailable {
		t.Fatal("slot at declared capacity must be unavailable")
	}
}

func TestExistsActiveIgnoresCancelled(t *testing.T) {
	db := setupTestDB(t)
	r := NewBookingRepo(db)
	ctx := context.Background()

	if err := r.Create(ctx, mkBooking("reg-9", domain.BookingCancelled)); err != nil {
		t.Fatal(err)
	}
	ok, err := r.ExistsActive(ctx, "reg-9", slotDate, "6:00 PM", domain.SessionGroup)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("a cancelled booking must not block a rebooking")
	}

	if err := r.Create(ctx, mkBooking("reg-9", domain.BookingConfirmed)); err != nil {
		t.Fatal(err)
	}
	ok, err = r.ExistsActive(ctx, "reg-9", slotDate, "6:00 PM", domain.SessionGroup)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("confirmed booking should be detected")
	}
}

func TestCancelConfirmedOnlyOnce(t *testing.T) {
	db := setupTestDB(t)
	r := NewBookingRepo(db)
	ctx := context.Background()

	b := mkBooking("reg-5", domain.BookingConfirmed)
	if err := r.Create(ctx, b); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CancelConfirmed(ctx, b.ID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if _, err := r.CancelConfirmed(ctx, b.ID); err == nil {
		t.Fatal("second cancel must fail so refunds cannot double-fire")
	}
}
