package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/farxc/orcamento-monitor/internal/anexo10"
	"github.com/farxc/orcamento-monitor/internal/equiplano"
	"github.com/farxc/orcamento-monitor/internal/facts"
	"github.com/farxc/orcamento-monitor/internal/ingest"
	"github.com/farxc/orcamento-monitor/internal/logger"
	"github.com/farxc/orcamento-monitor/internal/numeric"
	"github.com/farxc/orcamento-monitor/internal/quality"
	"github.com/farxc/orcamento-monitor/internal/reconcile"
	"github.com/farxc/orcamento-monitor/internal/reports"
	"github.com/farxc/orcamento-monitor/internal/sniff"
	"github.com/farxc/orcamento-monitor/internal/store"
)

var stageTables = map[equiplano.Stage]string{
	equiplano.StageEmpenhadas: store.StgDespesasEmpenhadas,
	equiplano.StageLiquidadas: store.StgDespesasLiquidadas,
	equiplano.StagePagas:      store.StgDespesasPagas,
}

var stageMetrics = map[equiplano.Stage]string{
	equiplano.StageEmpenhadas: reconcile.MetricEmpenhado,
	equiplano.StageLiquidadas: reconcile.MetricLiquidado,
	equiplano.StagePagas:      reconcile.MetricPago,
}

type pipeline struct {
	storage   *store.Storage
	logger    *logger.Logger
	years     []int
	srcDir    string
	outDir    string
	portalURL string
	threshold decimal.Decimal
	yoy       float64
	ptBR      bool
	rawCheck  bool

	criticalCount int
	advisoryCount int
}

func (p *pipeline) execute(ctx context.Context, fetch, stage, buildFacts, checks bool) int {
	const component = "Pipeline"

	if fetch {
		if err := p.fetchPhase(ctx); err != nil {
			p.logger.Error(component, "Fetch phase failed: error=%v", err)
			return exitFailed
		}
	}
	if stage {
		if err := p.stagePhase(ctx); err != nil {
			p.logger.Error(component, "Stage phase failed: error=%v", err)
			return exitFailed
		}
	}
	if buildFacts {
		if err := p.factsPhase(ctx); err != nil {
			p.logger.Error(component, "Facts phase failed: error=%v", err)
			return exitFailed
		}
	}
	if !checks {
		return exitClean
	}
	code, err := p.checksPhase(ctx)
	if err != nil {
		p.logger.Error(component, "Checks phase failed: error=%v", err)
		return exitFailed
	}
	return code
}

// fetchPhase downloads one CSV per expenditure stage and one Anexo 10 PDF
// per year. Files already on disk are not re-fetched, a re-run after a
// partial failure picks up where it stopped.
func (p *pipeline) fetchPhase(ctx context.Context) error {
	const component = "Fetcher"

	client, err := equiplano.NewClient(p.portalURL, p.logger)
	if err != nil {
		return err
	}

	for _, year := range p.years {
		for _, stage := range equiplano.Stages {
			dir := filepath.Join(p.srcDir, string(stage))
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return err
			}
			dest := filepath.Join(dir, equiplano.StageFileName(stage, year))
			if _, err := os.Stat(dest); err == nil {
				p.logger.Debug(component, "Source already on disk: path=%s", dest)
				continue
			}
			data, err := client.FetchStageCSV(ctx, stage, year)
			if err != nil {
				return fmt.Errorf("fetching %s for year %d: %w", stage, year, err)
			}
			// normalize encoding on disk so re-reads never have to guess
			utf8Data, err := sniff.ToUTF8(data)
			if err != nil {
				return fmt.Errorf("decoding %s for year %d: %w", stage, year, err)
			}
			if err := os.WriteFile(dest, utf8Data, 0o644); err != nil {
				return err
			}
			p.logger.Info(component, "Stage CSV fetched: stage=%s year=%d path=%s size=%d bytes", stage, year, dest, len(utf8Data))
		}

		pdfDir := filepath.Join(p.srcDir, "receitas_raw")
		if err := os.MkdirAll(pdfDir, os.ModePerm); err != nil {
			return err
		}
		dest := filepath.Join(pdfDir, equiplano.PDFFileName(year))
		if _, err := os.Stat(dest); err == nil {
			p.logger.Debug(component, "Source already on disk: path=%s", dest)
			continue
		}
		data, err := client.FetchAnexo10PDF(ctx, year, nil)
		if err != nil {
			return fmt.Errorf("fetching anexo 10 for year %d: %w", year, err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// stagePhase loads every fetched source file into its staging table.
func (p *pipeline) stagePhase(ctx context.Context) error {
	const component = "Stager"

	loader := ingest.NewLoader(p.storage.Staging, p.logger)

	for stage, table := range stageTables {
		dir := filepath.Join(p.srcDir, string(stage))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				p.logger.Warn(component, "No source directory for stage: stage=%s dir=%s", stage, dir)
				continue
			}
			return err
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if err := p.stageCSV(ctx, loader, table, path); err != nil {
				return fmt.Errorf("staging %s: %w", path, err)
			}
		}
	}

	return p.stagePDFs(ctx, loader)
}

func (p *pipeline) stageCSV(ctx context.Context, loader *ingest.Loader, table, path string) error {
	rel, err := rawRelation(path)
	if err != nil {
		return err
	}
	_, _, err = loader.Load(ctx, ingest.Dataset{Table: table, Columns: rel.Columns, Rows: rel.Rows})
	return err
}

// rawRelation reads one source CSV back from disk with the same decode,
// year and total-row treatment the staging loader applies.
func rawRelation(path string) (facts.Relation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return facts.Relation{}, err
	}
	cols, rows, err := ingest.DecodeCSV(data)
	if err != nil {
		return facts.Relation{}, err
	}
	cols, rows, err = ingest.EnsureYear(cols, rows, filepath.Base(path))
	if err != nil {
		return facts.Relation{}, err
	}
	rows = ingest.StripTotalRows(cols, rows)
	return facts.Relation{Table: filepath.Base(path), Columns: cols, Rows: rows}, nil
}

func (p *pipeline) stagePDFs(ctx context.Context, loader *ingest.Loader) error {
	const component = "Stager"

	dir := filepath.Join(p.srcDir, "receitas_raw")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			p.logger.Warn(component, "No revenue PDF directory: dir=%s", dir)
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		year, ok := anexo10.InferYear(entry.Name())
		if !ok {
			p.logger.Warn(component, "Cannot infer year from PDF name, skipping: path=%s", path)
			continue
		}

		pages, err := anexo10.ExtractFile(path)
		if err != nil {
			return fmt.Errorf("extracting text from %s: %w", path, err)
		}
		lines, err := anexo10.ParseDocument(pages)
		if err != nil {
			if errors.Is(err, anexo10.ErrNoTable) {
				return fmt.Errorf("%s carries no revenue table, likely a truncated download: %w", path, err)
			}
			return err
		}
		for i := range lines {
			lines[i].Year = year
		}

		artifactDir := filepath.Join(p.srcDir, "receitas_csv")
		if _, err := reports.WriteCSV(artifactDir, receitaArtifact(lines, year, p.ptBR)); err != nil {
			return fmt.Errorf("writing revenue CSV for %s: %w", path, err)
		}

		if _, _, err := loader.Load(ctx, ingest.ReceitaDataset(lines)); err != nil {
			return err
		}
	}
	return nil
}

// receitaArtifact shapes the parsed revenue lines as the reviewable CSV kept
// next to the source PDFs. With ptBR the amounts keep the portal's comma
// decimal, otherwise they are written dot-decimal like staging stores them.
func receitaArtifact(lines []anexo10.Line, year int, ptBR bool) reports.Table {
	t := reports.Table{
		Name:    fmt.Sprintf("%d_anexo10_receitas", year),
		Columns: []string{"ano", "codigo", "especificacao", "subitem", "previsao", "arrecadacao", "para_mais", "para_menos"},
	}
	for _, l := range lines {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(l.Year),
			l.Code,
			l.Category,
			l.Subitem,
			artifactAmount(l.Forecast, ptBR),
			artifactAmount(l.Collected, ptBR),
			artifactAmount(l.AdjustPlus, ptBR),
			artifactAmount(l.AdjustMinus, ptBR),
		})
	}
	return t
}

func artifactAmount(r numeric.Result, ptBR bool) string {
	if r.Null {
		return ""
	}
	if ptBR {
		return numeric.FormatBR(r.Value)
	}
	return r.Value.StringFixed(2)
}

func (p *pipeline) stagingRelation(ctx context.Context, table string) (facts.Relation, error) {
	cols, rows, err := p.storage.Staging.SelectAll(ctx, table)
	if err != nil {
		return facts.Relation{}, err
	}
	return facts.Relation{Table: table, Columns: cols, Rows: rows}, nil
}

// factsPhase rebuilds both fact tables for the selected years from staging.
func (p *pipeline) factsPhase(ctx context.Context) error {
	const component = "FactBuilder"

	emp, err := p.stagingRelation(ctx, store.StgDespesasEmpenhadas)
	if err != nil {
		return err
	}
	liq, err := p.stagingRelation(ctx, store.StgDespesasLiquidadas)
	if err != nil {
		return err
	}
	pag, err := p.stagingRelation(ctx, store.StgDespesasPagas)
	if err != nil {
		return err
	}
	rec, err := p.stagingRelation(ctx, store.StgReceitas)
	if err != nil {
		return err
	}

	builder := facts.NewBuilder(p.logger)
	despesa, err := builder.BuildDespesa(emp, liq, pag, p.years)
	if err != nil {
		return fmt.Errorf("building fato_despesa: %w", err)
	}
	receita, err := builder.BuildReceita(rec, p.years)
	if err != nil {
		return fmt.Errorf("building fato_receita: %w", err)
	}

	if err := p.storage.Facts.ReplaceDespesa(ctx, p.years, despesa); err != nil {
		return fmt.Errorf("replacing fato_despesa: %w", err)
	}
	if err := p.storage.Facts.ReplaceReceita(ctx, p.years, receita); err != nil {
		return fmt.Errorf("replacing fato_receita: %w", err)
	}

	p.logger.Info(component, "Fact tables rebuilt: years=%v despesaRows=%d receitaRows=%d", p.years, len(despesa), len(receita))
	return nil
}

// checksPhase reconciles staging against facts, runs the quality battery
// and writes the report artifacts. The returned code is the process exit.
func (p *pipeline) checksPhase(ctx context.Context) (int, error) {
	const component = "Checks"

	reconRows, err := p.reconcileStagingVsFacts(ctx)
	if err != nil {
		return exitFailed, err
	}
	if p.rawCheck {
		rawRows, err := p.reconcileRawVsStaging(ctx)
		if err != nil {
			return exitFailed, err
		}
		reconRows = append(reconRows, rawRows...)
	}

	engine := quality.NewEngine(&storeSource{storage: p.storage}, p.logger)
	results := engine.Run(ctx, quality.Config{ExpectedYears: p.years, YoYThreshold: p.yoy}, reconRows)

	var tables []reports.Table
	couldNotRun := false
	critical := false
	for _, r := range results {
		if r.Err != nil {
			couldNotRun = true
			continue
		}
		tables = append(tables, r.Table)
		if r.Violations() == 0 {
			continue
		}
		if r.Critical {
			critical = true
			p.criticalCount += r.Violations()
		} else {
			p.advisoryCount += r.Violations()
		}
	}

	if err := reports.WriteAll(p.outDir, tables); err != nil {
		return exitFailed, fmt.Errorf("writing report artifacts: %w", err)
	}
	p.logger.Info(component, "Reports written: dir=%s checks=%d critical=%d advisory=%d", p.outDir, len(tables), p.criticalCount, p.advisoryCount)

	if summary := reconcile.Summarize(reconRows); summary.Flagged > 0 {
		p.logger.Warn(component, "Reconciliation differences: flagged=%d maxAbsDiff=%.2f meanAbsDiff=%.2f", summary.Flagged, summary.MaxAbsDiff, summary.MeanAbsDiff)
	}

	switch {
	case couldNotRun:
		return exitFailed, nil
	case critical:
		return exitCritical, nil
	default:
		return exitClean, nil
	}
}

func (p *pipeline) reconcileStagingVsFacts(ctx context.Context) ([]reconcile.Row, error) {
	emp, err := p.stagingRelation(ctx, store.StgDespesasEmpenhadas)
	if err != nil {
		return nil, err
	}
	liq, err := p.stagingRelation(ctx, store.StgDespesasLiquidadas)
	if err != nil {
		return nil, err
	}
	pag, err := p.stagingRelation(ctx, store.StgDespesasPagas)
	if err != nil {
		return nil, err
	}
	rec, err := p.stagingRelation(ctx, store.StgReceitas)
	if err != nil {
		return nil, err
	}

	stagingDespesa, err := reconcile.StagingDespesaTotals(emp, liq, pag)
	if err != nil {
		return nil, err
	}
	stagingReceita, err := reconcile.StagingReceitaTotals(rec)
	if err != nil {
		return nil, err
	}

	factDespesa, err := p.storage.Facts.DespesaYearTotals(ctx, p.years)
	if err != nil {
		return nil, err
	}
	factReceita, err := p.storage.Facts.ReceitaYearTotals(ctx, p.years)
	if err != nil {
		return nil, err
	}

	rows := reconcile.Compare(stagingDespesa, reconcile.FactDespesaTotals(factDespesa), reconcile.StagingVsFact, p.threshold)
	rows = append(rows, reconcile.Compare(stagingReceita, reconcile.FactReceitaTotals(factReceita), reconcile.StagingVsFact, p.threshold)...)
	return rows, nil
}

// reconcileRawVsStaging recomputes expenditure totals straight from the CSV
// files on disk and compares them with staging. Revenue has no raw-layer CSV
// to compare, the PDF is parsed directly into staging.
func (p *pipeline) reconcileRawVsStaging(ctx context.Context) ([]reconcile.Row, error) {
	const component = "Checks"

	raw := reconcile.Totals{}
	for stage, metric := range stageMetrics {
		dir := filepath.Join(p.srcDir, string(stage))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				p.logger.Warn(component, "No raw directory for stage, skipping in raw check: stage=%s dir=%s", stage, dir)
				continue
			}
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			rel, err := rawRelation(path)
			if err != nil {
				return nil, fmt.Errorf("reading raw %s: %w", path, err)
			}
			t, err := reconcile.MetricTotals(rel, metric, stageValueColumns(stage, rel.Columns))
			if err != nil {
				return nil, fmt.Errorf("summing raw %s: %w", path, err)
			}
			reconcile.Merge(raw, t)
		}
	}

	emp, err := p.stagingRelation(ctx, store.StgDespesasEmpenhadas)
	if err != nil {
		return nil, err
	}
	liq, err := p.stagingRelation(ctx, store.StgDespesasLiquidadas)
	if err != nil {
		return nil, err
	}
	pag, err := p.stagingRelation(ctx, store.StgDespesasPagas)
	if err != nil {
		return nil, err
	}
	staging, err := reconcile.StagingDespesaTotals(emp, liq, pag)
	if err != nil {
		return nil, err
	}

	return reconcile.Compare(raw, staging, reconcile.RawVsStaging, p.threshold), nil
}

func stageValueColumns(stage equiplano.Stage, cols []string) []string {
	switch stage {
	case equiplano.StageEmpenhadas:
		return facts.EmpenhadoValueColumns(cols)
	case equiplano.StageLiquidadas:
		return facts.LiquidadoValueColumns(cols)
	default:
		return facts.PagoValueColumns(cols)
	}
}
