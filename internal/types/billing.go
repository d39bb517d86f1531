package types

// CheckoutRequest is the client body for starting a one-time purchase.
type CheckoutRequest struct {
	PriceID     string `json:"price_id" validate:"required,max=255"`
	ProductCode string `json:"product_code" validate:"required,max=100"`
	TargetID    string `json:"target_id,omitempty" validate:"omitempty,max=255"`
	VenueID     string `json:"venue_id,omitempty" validate:"omitempty,max=255"`
	SuccessURL  string `json:"success_url,omitempty" validate:"omitempty,url"`
	CancelURL   string `json:"cancel_url,omitempty" validate:"omitempty,url"`
}

// CheckoutSessionInput is what the payment provider needs to open a session.
// AccountID is sent both as client_reference_id and in metadata.
type CheckoutSessionInput struct {
	AccountID   string
	PriceID     string
	ProductCode string
	TargetID    string
	VenueID     string
	SuccessURL  string
	CancelURL   string
}

// CheckoutSession is the provider's response.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Checkout session metadata keys shared by the checkout creator and the
// webhook receiver.
const (
	MetaAccountID   = "account_id"
	MetaProductCode = "product_code"
	MetaTargetID    = "target_id"
	MetaVenueID     = "venue_id"
)
