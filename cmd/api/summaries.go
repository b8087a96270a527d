package main

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/farxc/orcamento-monitor/internal/response"
	"github.com/farxc/orcamento-monitor/internal/store"
)

type GetDespesasSummaryResponse = response.APIResponse[[]store.DespesaYearTotal]
type GetReceitasSummaryResponse = response.APIResponse[[]store.ReceitaYearTotal]

// parseYearsParam accepts a comma-separated list. Empty means every year.
func parseYearsParam(param string) ([]int, bool) {
	if param == "" {
		return nil, true
	}
	var years []int
	for _, part := range strings.Split(param, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		y, err := strconv.Atoi(part)
		if err != nil {
			return nil, false
		}
		years = append(years, y)
	}
	return years, true
}

// @Summary		Expenditure summary
// @Description	Yearly committed, liquidated and paid totals from the fact layer.
// @Tags			Despesas
// @Produce		json
// @Param			years	query		string						false	"Comma-separated years, e.g. 2022,2023"
// @Success		200		{object}	GetDespesasSummaryResponse	"Successfully summarized expenditures"
// @Failure		400		{object}	response.ErrorResponse		"Invalid years parameter"
// @Failure		500		{object}	response.ErrorResponse		"Failed to summarize expenditures"
// @Router			/despesas/summary [get]
func (app *application) handleGetDespesasSummary(w http.ResponseWriter, r *http.Request) {
	years, ok := parseYearsParam(r.URL.Query().Get("years"))
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid years parameter")
		return
	}

	ctx := r.Context()
	data, err := app.store.Facts.DespesaYearTotals(ctx, years)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to summarize despesas: "+err.Error())
		return
	}

	response := &GetDespesasSummaryResponse{
		Success: true,
		Data:    data,
		Message: "Successfully summarized despesas by year",
	}

	if err := writeJSON(w, http.StatusOK, response); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

// @Summary		Revenue summary
// @Description	Yearly budgeted versus collected revenue totals from the fact layer.
// @Tags			Receitas
// @Produce		json
// @Param			years	query		string						false	"Comma-separated years, e.g. 2022,2023"
// @Success		200		{object}	GetReceitasSummaryResponse	"Successfully summarized revenue"
// @Failure		400		{object}	response.ErrorResponse		"Invalid years parameter"
// @Failure		500		{object}	response.ErrorResponse		"Failed to summarize revenue"
// @Router			/receitas/summary [get]
func (app *application) handleGetReceitasSummary(w http.ResponseWriter, r *http.Request) {
	years, ok := parseYearsParam(r.URL.Query().Get("years"))
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid years parameter")
		return
	}

	ctx := r.Context()
	data, err := app.store.Facts.ReceitaYearTotals(ctx, years)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to summarize receitas: "+err.Error())
		return
	}

	response := &GetReceitasSummaryResponse{
		Success: true,
		Data:    data,
		Message: "Successfully summarized receitas by year",
	}

	if err := writeJSON(w, http.StatusOK, response); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}
