package checkout

import (
	"context"

	"github.com/google/uuid"
)

// SessionRequest is what a provider needs to open a hosted checkout.
type SessionRequest struct {
	OrderID           uuid.UUID
	UserID            uuid.UUID
	Email             string
	Product           Product
	ProviderProductID string
	SuccessURL        string
	CancelURL         string
}

// Session is the provider's hosted checkout handle.
type Session struct {
	ID  string
	URL string
}

// Gateway opens hosted checkout sessions at one payment provider.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// Metadata keys echoed back by provider webhooks.
const (
	MetadataOrderID     = "order_id"
	MetadataUserID      = "user_id"
	MetadataProductCode = "product_code"
)

func sessionMetadata(req SessionRequest) map[string]string {
	return map[string]string{
		MetadataOrderID:     req.OrderID.String(),
		MetadataUserID:      req.UserID.String(),
		MetadataProductCode: req.Product.Code,
	}
}
