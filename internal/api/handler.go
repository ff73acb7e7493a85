package api

import (
	"time"

	"ms-tableside/internal/billing"
	"ms-tableside/internal/bus"
	"ms-tableside/internal/logger"
	"ms-tableside/internal/order"
	"ms-tableside/internal/tables"
)

type Handler struct {
	Tables    *tables.Registry
	Orders    *order.OrderService
	Billing   *billing.Service
	Broker    *bus.Broker
	Logger    *logger.Logger
	KeepAlive time.Duration
}

func NewHandler(t *tables.Registry, o *order.OrderService, b *billing.Service, broker *bus.Broker, log *logger.Logger) *Handler {
	return &Handler{
		Tables:    t,
		Orders:    o,
		Billing:   b,
		Broker:    broker,
		Logger:    log,
		KeepAlive: 25 * time.Second,
	}
}
