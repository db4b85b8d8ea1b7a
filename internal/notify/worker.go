package notify

import (
	"context"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/you/hockey-training/pkg/mq"
)

// Bindings is every routing key the notify worker cares about.
var Bindings = []string{
	RKCreditsPurchased,
	RKBookingCreated,
	RKBookingCancelled,
	RKScheduleCreated,
	RKSlotUnavailable,
	RKCompensationFailed,
}

// Worker consumes API events and renders them as staff/parent notifications.
// Message handling is at-least-once: a failed handler Nacks with requeue.
type Worker struct {
	cons     *mq.Consumer
	notifier Notifier
}

func NewWorker(cons *mq.Consumer, n Notifier) *Worker {
	return &Worker{cons: cons, notifier: n}
}

func (w *Worker) Run(ctx context.Context) error {
	msgs, err := w.cons.Deliveries(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := w.handle(d); err != nil {
				log.Printf("[notify] handle error key=%s err=%v -> Nack&requeue", d.RoutingKey, err)
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (w *Worker) handle(d amqp.Delivery) error {
	switch d.RoutingKey {
	case RKCreditsPurchased:
		ev, err := Decode[CreditsPurchased](d.Body)
		if err != nil {
			return err
		}
		return w.notifier.Notify("Credits Purchased",
			fmt.Sprintf("Owner %s bought %s (%d credits, balance now %d).",
				ev.OwnerID, ev.PackageType, ev.Credits, ev.NewBalance))

	case RKBookingCreated:
		ev, err := Decode[BookingCreated](d.Body)
		if err != nil {
			return err
		}
		kind := "booking"
		if ev.IsRecurring {
			kind = "recurring booking"
		}
		return w.notifier.Notify("Booking Created",
			fmt.Sprintf("New %s %s: %s %s at %s.",
				kind, ev.BookingID, ev.SessionType, ev.SessionDate.Format("2006-01-02"), ev.TimeSlot))

	case RKBookingCancelled:
		ev, err := Decode[BookingCancelled](d.Body)
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("Booking %s was cancelled.", ev.BookingID)
		if ev.CreditRefunded {
			msg += " Credit refunded."
		}
		return w.notifier.Notify("Booking Cancelled", msg)

	case RKScheduleCreated:
		ev, err := Decode[ScheduleCreated](d.Body)
		if err != nil {
			return err
		}
		return w.notifier.Notify("Schedule Created",
			fmt.Sprintf("Weekly schedule %s: %s at %s. %s", ev.ScheduleID, ev.DayOfWeek, ev.TimeSlot, ev.Message))

	case RKSlotUnavailable:
		ev, err := Decode[SlotUnavailable](d.Body)
		if err != nil {
			return err
		}
		return w.notifier.Notify("Registration Slot Unavailable — refund needed",
			fmt.Sprintf("Registration %s: %s. The captured payment must be refunded.", ev.RegistrationID, ev.Reason))

	case RKCompensationFailed:
		ev, err := Decode[CompensationFailed](d.Body)
		if err != nil {
			return err
		}
		return w.notifier.Notify("COMPENSATION FAILED — manual reconciliation",
			fmt.Sprintf("Owner %s lot %s (intent %s): %s", ev.OwnerID, ev.LotID, ev.IntentID, ev.Error))

	default:
		// Unknown key on our queue; drop it.
		return nil
	}
}
