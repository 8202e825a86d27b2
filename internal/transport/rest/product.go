package rest

import (
	"net/http"

	"github.com/quickgrocery/grocery/pkg/web"
)

// FindProduct returns a single catalog product. It does not require authentication.
func (h *Handler) FindProduct(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseInt64(w, r, mLogger, "productId")
	if !ok {
		return
	}
	product, err := h.catalog.FindProduct(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, mLogger, err, "Failed to retrieve product")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, product)
}
