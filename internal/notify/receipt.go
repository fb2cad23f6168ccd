// Package notify delivers post-checkout receipts through an asynq task queue.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/obs"
)

// TypeCheckoutReceipt is the asynq task type for receipt emails.
const TypeCheckoutReceipt = "checkout:receipt"

// QueueReceipts is the asynq queue receipt tasks are published to.
const QueueReceipts = "receipts"

// Receipt is the task payload for a completed checkout.
type Receipt struct {
	UserID            int64     `json:"user_id"`
	ProviderSessionID string    `json:"provider_session_id"`
	Currency          string    `json:"currency,omitempty"`
	AmountMinor       int64     `json:"amount_minor,omitempty"`
	CompletedAt       time.Time `json:"completed_at"`
}

// NewReceiptTask encodes r as an asynq task. The provider session id doubles as the
// task id so a repeated completion is not enqueued twice.
func NewReceiptTask(r Receipt, opts ...asynq.Option) (*asynq.Task, error) {
	if r.UserID <= 0 {
		return nil, errors.New("receipt: user id is required")
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("receipt: encode: %w", err)
	}
	if id := strings.TrimSpace(r.ProviderSessionID); id != "" {
		opts = append([]asynq.Option{asynq.TaskID("receipt:" + id)}, opts...)
	}
	return asynq.NewTask(TypeCheckoutReceipt, payload, opts...), nil
}

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer publishes receipt tasks.
type Enqueuer struct {
	Client   TaskEnqueuer
	Queue    string
	MaxRetry int
}

// EnqueueReceipt publishes a receipt task. A duplicate task id is not an error.
func (e Enqueuer) EnqueueReceipt(ctx context.Context, r Receipt) error {
	if e.Client == nil {
		return nil
	}
	var opts []asynq.Option
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}
	task, err := NewReceiptTask(r, opts...)
	if err != nil {
		countReceipt("enqueue", "invalid")
		return err
	}
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			countReceipt("enqueue", "duplicate")
			return nil
		}
		countReceipt("enqueue", "error")
		return fmt.Errorf("enqueue receipt: %w", err)
	}
	countReceipt("enqueue", "ok")
	return nil
}

// Recipient resolves the delivery address for a user.
type Recipient struct {
	Username string
	Email    string
}

// RecipientLookup finds the recipient of a user's receipt.
type RecipientLookup interface {
	Recipient(ctx context.Context, userID int64) (Recipient, error)
}

// ReceiptHandler processes receipt tasks; it implements asynq.Handler.
type ReceiptHandler struct {
	Users  RecipientLookup
	Mail   common.EmailSender
	Logger zerolog.Logger
}

func (h ReceiptHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var r Receipt
	if err := json.Unmarshal(t.Payload(), &r); err != nil {
		countReceipt("process", "invalid")
		return fmt.Errorf("decode receipt: %v: %w", err, asynq.SkipRetry)
	}
	if h.Users == nil || h.Mail == nil {
		return errors.New("receipt handler not configured")
	}
	to, err := h.Users.Recipient(ctx, r.UserID)
	if err != nil {
		countReceipt("process", "error")
		return fmt.Errorf("lookup receipt recipient: %w", err)
	}
	if strings.TrimSpace(to.Email) == "" {
		h.Logger.Info().Int64("user_id", r.UserID).Msg("receipt_skipped_no_email")
		countReceipt("process", "skipped")
		return nil
	}
	if err := h.Mail.Send(ctx, to.Email, receiptSubject, receiptBody(to, r)); err != nil {
		countReceipt("process", "error")
		return fmt.Errorf("send receipt: %w", err)
	}
	countReceipt("process", "ok")
	return nil
}

const receiptSubject = "Your order receipt"

func receiptBody(to Recipient, r Receipt) string {
	var b strings.Builder
	name := to.Username
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\n\nThanks for your order.\n", name)
	if r.AmountMinor > 0 {
		amount := decimal.New(r.AmountMinor, -2).StringFixed(2)
		fmt.Fprintf(&b, "Total paid: %s %s\n", amount, strings.ToUpper(r.Currency))
	}
	if r.ProviderSessionID != "" {
		fmt.Fprintf(&b, "Reference: %s\n", r.ProviderSessionID)
	}
	fmt.Fprintf(&b, "Completed: %s\n", r.CompletedAt.Format(time.RFC1123))
	return b.String()
}

func countReceipt(stage, result string) {
	if obs.ReceiptTasksTotal != nil {
		obs.ReceiptTasksTotal.WithLabelValues(stage, result).Inc()
	}
}
