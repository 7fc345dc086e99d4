package events

import "time"

// Trigger sources for processing attempts.
const (
	SourceWebhook   = "webhook"
	SourceWatcher   = "watcher"
	SourceSweep     = "sweep"
	SourceReprocess = "reprocess"
)

type WebhookReceived struct {
	NotificationID string    `json:"notification_id"`
	RequestID      string    `json:"request_id"`
	Type           string    `json:"type"`
	Action         string    `json:"action"`
	DataID         string    `json:"data_id"`
	LiveMode       bool      `json:"live_mode"`
	At             time.Time `json:"at"`
}

func (WebhookReceived) Name() string { return "webhook.received" }

func (e WebhookReceived) PartitionKey() string { return e.DataID }

type WebhookRejected struct {
	RequestID string    `json:"request_id"`
	DataID    string    `json:"data_id"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

func (WebhookRejected) Name() string { return "webhook.rejected" }

func (e WebhookRejected) PartitionKey() string { return e.DataID }

type PaymentStatusObserved struct {
	ExternalReference string    `json:"external_reference"`
	PaymentID         string    `json:"payment_id"`
	Status            string    `json:"status"`
	Source            string    `json:"source"`
	At                time.Time `json:"at"`
}

func (PaymentStatusObserved) Name() string { return "payment.status_observed" }

func (e PaymentStatusObserved) PartitionKey() string { return e.ExternalReference }

type PaymentProcessed struct {
	ExternalReference string    `json:"external_reference"`
	PaymentID         string    `json:"payment_id"`
	ReferenceKind     string    `json:"reference_kind"`
	Source            string    `json:"source"`
	Forced            bool      `json:"forced"`
	Attempts          int       `json:"attempts"`
	At                time.Time `json:"at"`
}

func (PaymentProcessed) Name() string { return "payment.processed" }

func (e PaymentProcessed) PartitionKey() string { return e.ExternalReference }

type PaymentProcessingFailed struct {
	ExternalReference string    `json:"external_reference"`
	PaymentID         string    `json:"payment_id"`
	Source            string    `json:"source"`
	Reason            string    `json:"reason"`
	Attempts          int       `json:"attempts"`
	At                time.Time `json:"at"`
}

func (PaymentProcessingFailed) Name() string { return "payment.processing_failed" }

func (e PaymentProcessingFailed) PartitionKey() string { return e.ExternalReference }

type PaymentAlreadyProcessed struct {
	ExternalReference string    `json:"external_reference"`
	Source            string    `json:"source"`
	CompletedAt       time.Time `json:"completed_at"`
	At                time.Time `json:"at"`
}

func (PaymentAlreadyProcessed) Name() string { return "payment.already_processed" }

func (e PaymentAlreadyProcessed) PartitionKey() string { return e.ExternalReference }

type DuplicateSuppressed struct {
	Key    string    `json:"key"`
	Source string    `json:"source"`
	At     time.Time `json:"at"`
}

func (DuplicateSuppressed) Name() string { return "dedup.suppressed" }

func (e DuplicateSuppressed) PartitionKey() string { return e.Key }

type PreferenceCreated struct {
	ExternalReference string    `json:"external_reference"`
	PreferenceID      string    `json:"preference_id"`
	At                time.Time `json:"at"`
}

func (PreferenceCreated) Name() string { return "payment.preference_created" }

func (e PreferenceCreated) PartitionKey() string { return e.ExternalReference }

type PaymentRecordDeleted struct {
	ExternalReference string    `json:"external_reference"`
	At                time.Time `json:"at"`
}

func (PaymentRecordDeleted) Name() string { return "payment.record_deleted" }

func (e PaymentRecordDeleted) PartitionKey() string { return e.ExternalReference }

type PaymentRecordsCleared struct {
	Count int       `json:"count"`
	At    time.Time `json:"at"`
}

func (PaymentRecordsCleared) Name() string { return "payment.records_cleared" }

func (e PaymentRecordsCleared) PartitionKey() string { return "" }

// Names lists every event this service publishes, for catch-all subscribers.
func Names() []string {
	return []string{
		WebhookReceived{}.Name(),
		WebhookRejected{}.Name(),
		PaymentStatusObserved{}.Name(),
		PaymentProcessed{}.Name(),
		PaymentProcessingFailed{}.Name(),
		PaymentAlreadyProcessed{}.Name(),
		DuplicateSuppressed{}.Name(),
		PreferenceCreated{}.Name(),
		PaymentRecordDeleted{}.Name(),
		PaymentRecordsCleared{}.Name(),
	}
}
