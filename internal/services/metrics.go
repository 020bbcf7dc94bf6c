package services

import (
	"Key2PayBridge/internal/key2pay"
	"Key2PayBridge/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

var notificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "key2pay_notifications_total",
		Help: "Processor notifications by canonical outcome and ingress source",
	},
	[]string{"outcome", "source"},
)

func init() {
	prometheus.MustRegister(notificationsTotal)
}

func observeNotification(outcome key2pay.Outcome, source models.NotificationSource) {
	notificationsTotal.WithLabelValues(string(outcome), string(source)).Inc()
}
