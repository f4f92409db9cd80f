package handlers

import (
	"net/http"

	checkoutsvc "github.com/dmarques/pixgen/backend/internal/services/checkout"
	"github.com/dmarques/pixgen/backend/internal/transport/http/dto"
	httperrors "github.com/dmarques/pixgen/backend/internal/transport/http/errors"
)

type ProductsHandler struct {
	checkout *checkoutsvc.Service
}

func NewProductsHandler(checkout *checkoutsvc.Service) *ProductsHandler {
	return &ProductsHandler{checkout: checkout}
}

func (h *ProductsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.checkout == nil {
		writeInternal(w, "CHECKOUT_SERVICE_UNAVAILABLE", "checkout service is unavailable")
		return
	}

	products, err := h.checkout.ListProducts(r.Context())
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to list products")
		return
	}

	items := make([]dto.ProductResponse, 0, len(products))
	for _, product := range products {
		items = append(items, dto.ProductResponse{
			ID:             product.ID,
			Name:           product.Name,
			CreditsGranted: product.CreditsGranted,
			PriceCents:     product.PriceCents,
			Unlimited:      product.Unlimited,
		})
	}

	httperrors.Write(w, http.StatusOK, dto.ProductsResponse{Products: items})
}
