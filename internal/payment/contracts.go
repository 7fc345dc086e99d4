package payment

import (
	"context"

	"github.com/ReimaoHenrique/api-mercadolivre/kit/broker"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/db"
	gateway "github.com/ReimaoHenrique/api-mercadolivre/kit/external_payment_gateway"
)

// RepositoryContract is the durable keyed record store. Upsert merges and
// writes atomically per ExternalReference.
type RepositoryContract interface {
	Upsert(ctx context.Context, rec *PaymentRecord) (*PaymentRecord, error)
	Get(ctx context.Context, ref string) (*PaymentRecord, error)
	ListAll(ctx context.Context) (*Listing, error)
	Delete(ctx context.Context, ref string) (bool, error)
	Clear(ctx context.Context) (int, error)
	Stats(ctx context.Context) (Stats, error)
}

// ServiceContract is the administrative surface over stored records.
type ServiceContract interface {
	Get(ctx context.Context, ref string) (*PaymentRecord, error)
	List(ctx context.Context) (*Listing, error)
	Delete(ctx context.Context, ref string) (bool, error)
	Clear(ctx context.Context) (int, error)
	Stats(ctx context.Context) (Stats, error)
	History(ctx context.Context, ref string) []db.Entry
	CreatePreference(ctx context.Context, req gateway.PreferenceRequest) (*gateway.Preference, error)
}

// PublisherContract define publish responsibility (broker).
type PublisherContract interface {
	Publish(ctx context.Context, evt broker.Event) []error
}

// HistoryContract define append/load responsibility (event store).
type HistoryContract interface {
	Append(ctx context.Context, streamID string, evt broker.Event) (db.Entry, error)
	Load(ctx context.Context, streamID string) []db.Entry
}

type PreferenceCreatorContract interface {
	CreatePreference(ctx context.Context, req gateway.PreferenceRequest) (*gateway.Preference, error)
}
