package main

import (
	"net/http"
	"strconv"

	"github.com/farxc/orcamento-monitor/internal/response"
	"github.com/farxc/orcamento-monitor/internal/store"
)

type GetLatestRunResponse = response.APIResponse[[]store.PipelineRun]

// @Summary		Latest pipeline runs
// @Description	Get the most recent pipeline runs with their quality outcome.
// @Tags			Quality
// @Produce		json
// @Param			limit	query		int						false	"Limit the number of results"	default(1)
// @Success		200		{object}	GetLatestRunResponse	"Successfully retrieved latest runs"
// @Failure		500		{object}	response.ErrorResponse	"Failed to get pipeline runs"
// @Router			/quality/latest-run [get]
func (app *application) handleGetLatestRun(w http.ResponseWriter, r *http.Request) {
	limitParam := r.URL.Query().Get("limit")
	limit := 1
	if limitParam != "" {
		if l, err := strconv.Atoi(limitParam); err == nil && l > 0 {
			limit = l
		}
	}

	ctx := r.Context()
	data, err := app.store.Runs.GetLatest(ctx, limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to get pipeline runs: "+err.Error())
		return
	}

	response := &GetLatestRunResponse{
		Success: true,
		Data:    data,
		Message: "Successfully retrieved latest pipeline runs",
	}

	if err := writeJSON(w, http.StatusOK, response); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}
