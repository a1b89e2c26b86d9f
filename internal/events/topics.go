package events

// Topics emitted by the checkout service.
const (
	TopicSessionCreated   = "checkout.session.created"
	TopicSessionUpdated   = "checkout.session.updated"
	TopicSessionCompleted = "checkout.session.completed"
	TopicSessionCanceled  = "checkout.session.canceled"
	TopicPaymentFailed    = "checkout.payment.failed"
)

// AllTopics lists every topic in emission order of a session lifecycle.
func AllTopics() []string {
	return []string{
		TopicSessionCreated,
		TopicSessionUpdated,
		TopicSessionCompleted,
		TopicSessionCanceled,
		TopicPaymentFailed,
	}
}
