package billing

import (
	"context"
	"strings"

	"matchpass/internal/types"
)

// CheckoutProvider opens hosted checkout sessions at the payment processor.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, in types.CheckoutSessionInput) (*types.CheckoutSession, error)
}

// CheckoutService starts one-time purchases. It rejects product codes the
// catalog cannot fulfil so a paid session can never land as UnknownProduct.
type CheckoutService struct {
	provider CheckoutProvider
	catalog  Catalog
	appURL   string
}

func NewCheckoutService(provider CheckoutProvider, catalog Catalog, appURL string) *CheckoutService {
	return &CheckoutService{provider: provider, catalog: catalog, appURL: strings.TrimRight(appURL, "/")}
}

// Create opens a checkout session for accountID.
func (s *CheckoutService) Create(ctx context.Context, accountID string, req types.CheckoutRequest) (*types.CheckoutSession, error) {
	code := strings.TrimSpace(req.ProductCode)
	if accountID == "" || req.PriceID == "" || code == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "price_id and product_code are required", nil)
	}

	recipe, ok := s.catalog.Resolve(code)
	if !ok || recipe.Code == ProductLegacyAccess {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeProductUnknown,
			"unknown product code", nil, map[string]any{"product_code": code})
	}
	if recipe.Scope == types.ScopeUnlock && req.TargetID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationTargetRequired, "target_id is required for unlock products", nil)
	}

	in := types.CheckoutSessionInput{
		AccountID:   accountID,
		PriceID:     req.PriceID,
		ProductCode: recipe.Code,
		TargetID:    req.TargetID,
		VenueID:     req.VenueID,
		SuccessURL:  req.SuccessURL,
		CancelURL:   req.CancelURL,
	}
	if in.SuccessURL == "" {
		in.SuccessURL = s.appURL + "/pricing?success=1"
	}
	if in.CancelURL == "" {
		in.CancelURL = s.appURL + "/pricing"
	}

	return s.provider.CreateCheckoutSession(ctx, in)
}
