package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/notify"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type fakeUsers map[int64]notify.Recipient

func (f fakeUsers) Recipient(_ context.Context, id int64) (notify.Recipient, error) {
	r, ok := f[id]
	if !ok {
		return notify.Recipient{}, errors.New("no such user")
	}
	return r, nil
}

func sampleReceipt() notify.Receipt {
	return notify.Receipt{
		UserID:            7,
		ProviderSessionID: "cs_test_1",
		Currency:          "gbp",
		AmountMinor:       5000,
		CompletedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestEnqueueReceipt(t *testing.T) {
	client := &fakeEnqueuer{}
	require.NoError(t, notify.Enqueuer{Client: client, Queue: "default", MaxRetry: 3}.EnqueueReceipt(context.Background(), sampleReceipt()))
	require.Len(t, client.tasks, 1)
	require.Equal(t, notify.TypeCheckoutReceipt, client.tasks[0].Type())

	var decoded notify.Receipt
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &decoded))
	require.Equal(t, int64(5000), decoded.AmountMinor)
}

func TestEnqueueReceiptDuplicateIsIgnored(t *testing.T) {
	client := &fakeEnqueuer{err: asynq.ErrTaskIDConflict}
	require.NoError(t, notify.Enqueuer{Client: client}.EnqueueReceipt(context.Background(), sampleReceipt()))
}

func TestEnqueueReceiptRequiresUser(t *testing.T) {
	r := sampleReceipt()
	r.UserID = 0
	require.Error(t, notify.Enqueuer{Client: &fakeEnqueuer{}}.EnqueueReceipt(context.Background(), r))
}

func TestReceiptHandlerSendsEmail(t *testing.T) {
	mail := &common.InMemoryEmail{}
	h := notify.ReceiptHandler{Users: fakeUsers{7: {Username: "alice", Email: "alice@example.com"}}, Mail: mail}
	task, err := notify.NewReceiptTask(sampleReceipt())
	require.NoError(t, err)

	require.NoError(t, h.ProcessTask(context.Background(), task))
	sent := mail.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "alice@example.com", sent[0].To)
	require.Contains(t, sent[0].Body, "50.00 GBP")
	require.Contains(t, sent[0].Body, "cs_test_1")
}

func TestReceiptHandlerSkipsUsersWithoutEmail(t *testing.T) {
	mail := &common.InMemoryEmail{}
	h := notify.ReceiptHandler{Users: fakeUsers{7: {Username: "bob"}}, Mail: mail}
	task, err := notify.NewReceiptTask(sampleReceipt())
	require.NoError(t, err)

	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.Empty(t, mail.Sent())
}

func TestReceiptHandlerRejectsBadPayload(t *testing.T) {
	h := notify.ReceiptHandler{Users: fakeUsers{}, Mail: &common.InMemoryEmail{}}
	err := h.ProcessTask(context.Background(), asynq.NewTask(notify.TypeCheckoutReceipt, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
