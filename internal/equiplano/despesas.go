package equiplano

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Stage identifies one of the portal's expenditure listings.
type Stage string

const (
	StageEmpenhadas Stage = "empenhadas"
	StageLiquidadas Stage = "liquidadas"
	StagePagas      Stage = "pagas"
)

var Stages = []Stage{StageEmpenhadas, StageLiquidadas, StagePagas}

var stagePaths = map[Stage]string{
	StageEmpenhadas: "/transparencia/despesaEmpenhada/listaAno",
	StageLiquidadas: "/transparencia/despesaLiquidada/listaAno",
	StagePagas:      "/transparencia/despesaPaga/listaDespesaPagaPorAno",
}

// Matches "d-1234", "d-1234-" and "d-1234-anything".
var displayTagIDRe = regexp.MustCompile(`\bd-(\d+)(?:-\w+)?`)

// FetchStageCSV exports one expenditure listing for a year. It walks the
// DisplayTag export paths in order of reliability: a CSV anchor on the page,
// then the export flag variants against the listing URL, then a submit of
// the page's form with the export flag added.
func (c *Client) FetchStageCSV(ctx context.Context, stage Stage, year int) ([]byte, error) {
	const component = "EquiplanoClient"

	path, ok := stagePaths[stage]
	if !ok {
		return nil, fmt.Errorf("unknown expenditure stage %q", stage)
	}
	listURL, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	params := url.Values{
		"formulario.exercicio":   {strconv.Itoa(year)},
		"formulario.codEntidade": {""}, // empty means every entity
	}

	resp, body, err := c.get(ctx, listURL, params, listURL)
	if err != nil {
		return nil, fmt.Errorf("opening %s listing for year %d: %w", stage, year, err)
	}
	if contentIsCSV(resp, body) {
		// Some deployments answer the listing URL with the CSV directly.
		return body, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s listing page: %w", stage, err)
	}

	if link, ok := csvAnchor(doc); ok {
		target, err := c.resolve(link)
		if err == nil {
			c.logger.Debug(component, "CSV anchor found: stage=%s year=%d href=%s", stage, year, link)
			if resp, data, err := c.get(ctx, target, nil, listURL); err == nil && contentIsCSV(resp, data) {
				return data, nil
			}
			c.logger.Debug(component, "CSV anchor did not yield CSV, trying export flags: stage=%s year=%d", stage, year)
		}
	}

	tableID := ""
	if m := displayTagIDRe.FindSubmatch(body); m != nil {
		tableID = string(m[1])
	}

	for i, extra := range exportVariants(tableID) {
		merged := url.Values{}
		for k, vs := range params {
			merged[k] = vs
		}
		for k, vs := range extra {
			merged[k] = vs
		}
		c.logger.Debug(component, "Trying export variant: stage=%s year=%d variant=%d", stage, year, i+1)
		if resp, data, err := c.get(ctx, listURL, merged, listURL); err == nil && contentIsCSV(resp, data) {
			return data, nil
		}
	}

	if data, err := c.exportViaForm(ctx, doc, listURL, params, tableID); err == nil {
		return data, nil
	}

	return nil, fmt.Errorf("CSV export failed for %s year %d: portal kept answering HTML", stage, year)
}

// exportVariants lists the DisplayTag export parameter combinations the
// portal's screens have been seen to accept. 6578706f7274 is "export" in
// ASCII hex, the marker the taglib itself uses.
func exportVariants(tableID string) []url.Values {
	if tableID == "" {
		return []url.Values{
			{"6578706f7274": {"1"}},
			{"exportType": {"csv"}},
			{"displaytag_export": {"true"}},
			{"export": {"csv"}},
		}
	}
	e := "d-" + tableID + "-e"
	o := "d-" + tableID + "-o"
	return []url.Values{
		{e: {"1"}, "6578706f7274": {"1"}},
		{o: {"csv"}, "6578706f7274": {"1"}},
		{e: {"1"}, "export": {"1"}},
		{o: {"csv"}, "exportType": {"csv"}},
		{"displaytag_export": {"true"}, e: {"1"}},
	}
}

func csvAnchor(doc *goquery.Document) (string, bool) {
	var href string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		h, _ := s.Attr("href")
		if strings.Contains(strings.ToLower(h), "csv") {
			href = h
			return false
		}
		return true
	})
	return href, href != ""
}

// exportViaForm submits the listing's own form with the export flag set.
// Some portal modules only export through the form's POST action.
func (c *Client) exportViaForm(ctx context.Context, doc *goquery.Document, listURL string, params url.Values, tableID string) ([]byte, error) {
	form := doc.Find("form").First()
	if form.Length() == 0 {
		return nil, fmt.Errorf("listing page has no form")
	}
	action, _ := form.Attr("action")
	target, err := c.resolve(actionOr(action, listURL))
	if err != nil {
		return nil, err
	}

	payload := url.Values{}
	form.Find("input, textarea").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			return
		}
		val, _ := s.Attr("value")
		payload.Set(name, val)
	})
	form.Find("select").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			return
		}
		opt := s.Find("option[selected]").First()
		if opt.Length() == 0 {
			opt = s.Find("option").First()
		}
		val, _ := opt.Attr("value")
		payload.Set(name, val)
	})

	for k, vs := range params {
		payload[k] = vs
	}
	payload.Set("6578706f7274", "1")
	if tableID != "" {
		payload.Set("d-"+tableID+"-e", "1")
	}

	resp, data, err := c.postForm(ctx, target, payload, listURL)
	if err != nil {
		return nil, err
	}
	if !contentIsCSV(resp, data) {
		return nil, fmt.Errorf("form export returned %s, not CSV", resp.Header.Get("Content-Type"))
	}
	return data, nil
}

func actionOr(action, fallback string) string {
	if strings.TrimSpace(action) == "" {
		return fallback
	}
	return action
}

// StageFileName is the canonical on-disk name for a fetched stage export.
func StageFileName(stage Stage, year int) string {
	return fmt.Sprintf("equiplano_%s_ano%d.csv", stage, year)
}
