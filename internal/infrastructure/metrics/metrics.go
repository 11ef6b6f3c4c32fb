package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the chat counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	ConversationsCreated prometheus.Counter
	ConversationHeals    *prometheus.CounterVec
	MessagesAppended     *prometheus.CounterVec
	MessagesMarkedRead   prometheus.Counter
	Notifications        *prometheus.CounterVec
	ActiveSubscriptions  prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConversationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kitchenchat",
			Name:      "conversations_created_total",
			Help:      "Conversations created.",
		}),
		ConversationHeals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kitchenchat",
			Name:      "conversation_heals_total",
			Help:      "Identity fields repaired on conversations.",
		}, []string{"field", "trigger"}),
		MessagesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kitchenchat",
			Name:      "messages_appended_total",
			Help:      "Messages written, by sender role.",
		}, []string{"role"}),
		MessagesMarkedRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kitchenchat",
			Name:      "messages_marked_read_total",
			Help:      "Messages transitioned to read.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kitchenchat",
			Name:      "notifications_total",
			Help:      "Outbound message notifications, by result.",
		}, []string{"result"}),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kitchenchat",
			Name:      "active_subscriptions",
			Help:      "Live message subscriptions.",
		}),
	}

	reg.MustRegister(
		m.ConversationsCreated,
		m.ConversationHeals,
		m.MessagesAppended,
		m.MessagesMarkedRead,
		m.Notifications,
		m.ActiveSubscriptions,
	)
	return m
}

func (m *Metrics) ConversationCreated() {
	if m != nil {
		m.ConversationsCreated.Inc()
	}
}

func (m *Metrics) Healed(field, trigger string) {
	if m != nil {
		m.ConversationHeals.WithLabelValues(field, trigger).Inc()
	}
}

func (m *Metrics) MessageAppended(role string) {
	if m != nil {
		m.MessagesAppended.WithLabelValues(role).Inc()
	}
}

func (m *Metrics) MarkedRead(n int) {
	if m != nil {
		m.MessagesMarkedRead.Add(float64(n))
	}
}

func (m *Metrics) Notified(ok bool) {
	if m == nil {
		return
	}
	result := "sent"
	if !ok {
		result = "failed"
	}
	m.Notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) SubscriptionOpened() {
	if m != nil {
		m.ActiveSubscriptions.Inc()
	}
}

func (m *Metrics) SubscriptionClosed() {
	if m != nil {
		m.ActiveSubscriptions.Dec()
	}
}
