package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"localbiz-chat/internal/analytics"
	"localbiz-chat/internal/domain"
)

// AnalyticsReader produces a business summary for the calling viewer.
type AnalyticsReader interface {
	ForViewer(ctx context.Context, businessID int64, tr analytics.TimeRange) (*analytics.Summary, error)
}

type AnalyticsHandler struct {
	analytics AnalyticsReader
}

func NewAnalyticsHandler(reader AnalyticsReader) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: reader}
}

// Get serves GET /businesses/{businessId}/analytics?timeRange=7days[&strict=true].
func (h *AnalyticsHandler) Get(w http.ResponseWriter, r *http.Request) {
	businessID, err := pathID(r, "businessId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	query := r.URL.Query()
	strict := false
	if raw := query.Get("strict"); raw != "" {
		strict, err = strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: strict must be a boolean", domain.ErrValidation))
			return
		}
	}

	tr, err := analytics.ParseTimeRange(query.Get("timeRange"), strict)
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := h.analytics.ForViewer(r.Context(), businessID, tr)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
