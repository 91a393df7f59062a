package main

import (
	"context"
	"log"

	"parcel-dispatch/internal/api"
	"parcel-dispatch/internal/config"
	"parcel-dispatch/internal/modules/courier"
	"parcel-dispatch/internal/modules/order"
	"parcel-dispatch/internal/modules/payment"
	"parcel-dispatch/internal/modules/user"
	"parcel-dispatch/pkg/email"
	"parcel-dispatch/pkg/maps"
	"parcel-dispatch/pkg/mpesa"
	stripegw "parcel-dispatch/pkg/payment"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}

	ctx := context.Background()

	dbpool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("unable to create connection pool: %v", err)
	}
	defer dbpool.Close()

	if err := dbpool.Ping(ctx); err != nil {
		log.Fatalf("unable to reach database: %v", err)
	}

	userRepo := user.NewRepository(dbpool)
	userSvc := user.NewService(userRepo, cfg.JWTSecret)

	var notifier order.Notifier = nopNotifier{}
	if cfg.EmailSender != "" {
		emailSvc, err := email.NewService(ctx, cfg.AWSRegion, cfg.EmailSender, userSvc)
		if err != nil {
			log.Fatalf("could not initialize email service: %v", err)
		}
		notifier = emailSvc
	} else {
		log.Println("EMAIL_SENDER not set, notifications disabled.")
	}

	mapsSvc := maps.NewService(cfg.MapsAPIKey)

	var gateway payment.GatewayInterface
	switch {
	case cfg.MpesaConsumerKey != "":
		gateway = mpesa.NewService(mpesa.Config{
			Environment:    cfg.MpesaEnvironment,
			ConsumerKey:    cfg.MpesaConsumerKey,
			ConsumerSecret: cfg.MpesaConsumerSecret,
			Shortcode:      cfg.MpesaShortcode,
			Passkey:        cfg.MpesaPasskey,
			CallbackURL:    cfg.MpesaCallbackURL,
		})
	case cfg.StripeAPIKey != "":
		gateway = stripegw.NewStripeGateway(cfg.StripeAPIKey)
	default:
		log.Fatal("no payment gateway configured: set MPESA_CONSUMER_KEY or STRIPE_API_KEY")
	}

	courierRepo := courier.NewRepository(dbpool)
	courierSvc := courier.NewService(courierRepo)

	orderRepo := order.NewRepository(dbpool)

	paymentRepo := payment.NewRepository(dbpool)
	paymentSvc := payment.NewService(paymentRepo, orderRepo, gateway, notifier)

	orderSvc := order.NewService(orderRepo, mapsSvc, courierSvc, paymentSvc, notifier)

	handlers := api.Handlers{
		User:    user.NewHandler(userSvc),
		Order:   order.NewHandler(orderSvc),
		Payment: payment.NewHandler(paymentSvc, mpesa.ParseCallback),
		Courier: courier.NewHandler(courierSvc),
	}

	e := api.NewRouter(cfg, handlers)

	log.Printf("starting server on port %s", cfg.ServerPort)
	if err := e.Start(":" + cfg.ServerPort); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

// nopNotifier drops notifications when no email sender is configured.
type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, string, map[string]string) {}
