package notify

import (
	"context"
	"fmt"

	"github.com/torqueops/dispatch/internal/model"
)

// Notifier is the domain-facing facade over the resilient channels. It is
// always called after the authoritative state mutation has been persisted,
// so a lost notification can never threaten a write.
type Notifier struct {
	sms  *ResilientSender
	push *ResilientSender
}

func NewNotifier(sms, push *ResilientSender) *Notifier {
	return &Notifier{sms: sms, push: push}
}

// VendorSelected tells a vendor their bid won and where to manage the job.
func (n *Notifier) VendorSelected(ctx context.Context, job model.Job, portalURL string) {
	body := fmt.Sprintf("You got the job (%s). ETA confirmed. Manage it here: %s",
		job.ServiceType, portalURL)
	n.sms.Send(ctx, job.VendorPhone, body, job.ID)
}

// JobCompleted sends the customer a completion receipt.
func (n *Notifier) JobCompleted(ctx context.Context, job model.Job) {
	amount := 0.0
	if job.ReportedPayment != nil {
		amount = job.ReportedPayment.Amount
	}
	body := fmt.Sprintf("Your %s job is complete. Total collected: $%.2f. Thanks for using us.",
		job.ServiceType, amount)
	n.sms.Send(ctx, job.CustomerPhone, body, job.ID)
}

// DispatchPing nudges a candidate vendor about an open job nearby.
func (n *Notifier) DispatchPing(ctx context.Context, vendor model.Vendor, job model.Job, bidURL string) {
	body := fmt.Sprintf("New %s job near you (%s priority). Bid here: %s",
		job.ServiceType, job.Urgency, bidURL)
	n.push.Send(ctx, vendor.Phone, body, job.ID)
}
