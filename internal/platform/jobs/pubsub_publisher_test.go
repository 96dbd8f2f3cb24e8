package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/coursekart/payments-api/internal/services"
)

func TestPubSubReconciledPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "payments-order-reconciled")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubReconciledPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubReconciledPublisher: %v", err)
	}

	reconciledAt := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	msg := services.ReconciledMessage{
		OrderID:            "ord_01HTESTXYZ",
		ProcessorOrderID:   "order_N9eXjYqkpyGZ2z",
		ProcessorPaymentID: "pay_N9eYvBhnYw71Qa",
		TotalPrice:         2499,
		PayerEmail:         "asha@example.com",
		ReconciledAt:       reconciledAt,
	}

	if err := publisher.PublishReconciled(ctx, msg); err != nil {
		t.Fatalf("PublishReconciled: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.ReconciledMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != msg.OrderID || payload.ProcessorPaymentID != msg.ProcessorPaymentID {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["event"]; attr != "payments.order.reconciled" {
		t.Fatalf("expected event attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["orderId"]; attr != "ord_01HTESTXYZ" {
		t.Fatalf("expected orderId attribute, got %q", attr)
	}
}

func TestNewPubSubReconciledPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubReconciledPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
