// Package email sends transactional notifications through AWS SESv2.
// Delivery is best-effort: failures are logged and never propagated to the
// request that triggered them.
package email

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// Directory resolves a user id to an email address. Implemented by the user
// repository.
type Directory interface {
	EmailByUserID(ctx context.Context, userID string) (string, error)
}

// Service sends notification emails via SESv2.
type Service struct {
	client    *sesv2.Client
	directory Directory
	sender    string
}

// NewService loads AWS configuration and builds the notifier.
func NewService(ctx context.Context, region, sender string, directory Directory) (*Service, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("email.NewService: %w", err)
	}
	return &Service{
		client:    sesv2.NewFromConfig(cfg),
		directory: directory,
		sender:    sender,
	}, nil
}

// subjects maps notification events to email subject lines.
var subjects = map[string]string{
	"ORDER_CREATED":     "Your delivery order has been placed",
	"COURIER_ASSIGNED":  "A courier is on the way",
	"NEW_ASSIGNMENT":    "New delivery assignment",
	"STATUS_CHANGED":    "Delivery status update",
	"DELIVERY_COMPLETE": "Your parcel has been delivered",
	"PAYMENT_RECEIVED":  "Payment received",
	"PAYMENT_FAILED":    "Payment failed",
}

// Notify sends the event to the recipient asynchronously. The caller's
// context is not reused: the send gets its own bounded deadline so a slow
// SES call never holds a request open.
func (s *Service) Notify(ctx context.Context, event, recipientID string, payload map[string]string) {
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		to, err := s.directory.EmailByUserID(sendCtx, recipientID)
		if err != nil {
			log.Printf("email.Notify: no address for user %s: %v", recipientID, err)
			return
		}

		subject, ok := subjects[event]
		if !ok {
			subject = "Delivery notification"
		}
		body := payload["message"]
		if body == "" {
			body = subject
		}

		_, err = s.client.SendEmail(sendCtx, &sesv2.SendEmailInput{
			FromEmailAddress: aws.String(s.sender),
			Destination:      &types.Destination{ToAddresses: []string{to}},
			Content: &types.EmailContent{
				Simple: &types.Message{
					Subject: &types.Content{Data: aws.String(subject)},
					Body: &types.Body{
						Text: &types.Content{Data: aws.String(body)},
					},
				},
			},
		})
		if err != nil {
			log.Printf("email.Notify: send %s to user %s failed: %v", event, recipientID, err)
		}
	}()
}
