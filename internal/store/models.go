package store

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Canonical staging table names. The column layout of each is whatever the
// portal exported that year; only TEXT columns plus the bookkeeping fields
// below are guaranteed.
const (
	StgDespesasEmpenhadas = "stg_despesas_empenhadas"
	StgDespesasLiquidadas = "stg_despesas_liquidadas"
	StgDespesasPagas      = "stg_despesas_pagas"
	StgReceitas           = "stg_receitas"
)

// Bookkeeping columns every staging table carries alongside the source data.
const (
	ColRowHash     = "id_linha_hash"
	ColExtractedAt = "dt_extracao"
)

// FactDespesa represents one 'fato_despesa' row: expenditure execution
// aggregated by fiscal year and entity.
type FactDespesa struct {
	Exercicio      int             `db:"exercicio" json:"exercicio"`
	Entidade       string          `db:"entidade" json:"entidade"`
	ValorEmpenhado decimal.Decimal `db:"valor_empenhado" json:"valor_empenhado"`
	ValorLiquidado decimal.Decimal `db:"valor_liquidado" json:"valor_liquidado"`
	ValorPago      decimal.Decimal `db:"valor_pago" json:"valor_pago"`
}

// FactReceita represents one 'fato_receita' row: revenue forecast vs
// collection aggregated by fiscal year and category code.
type FactReceita struct {
	Exercicio     int             `db:"exercicio" json:"exercicio"`
	Codigo        string          `db:"codigo" json:"codigo"`
	Especificacao string          `db:"especificacao" json:"especificacao"`
	Previsao      decimal.Decimal `db:"previsao" json:"previsao"`
	Arrecadacao   decimal.Decimal `db:"arrecadacao" json:"arrecadacao"`
}

type DespesaYearTotal struct {
	Exercicio int             `db:"exercicio" json:"exercicio"`
	Empenhado decimal.Decimal `db:"empenhado" json:"empenhado"`
	Liquidado decimal.Decimal `db:"liquidado" json:"liquidado"`
	Pago      decimal.Decimal `db:"pago" json:"pago"`
}

type ReceitaYearTotal struct {
	Exercicio   int             `db:"exercicio" json:"exercicio"`
	Previsao    decimal.Decimal `db:"previsao" json:"previsao"`
	Arrecadacao decimal.Decimal `db:"arrecadacao" json:"arrecadacao"`
}

// HashCount is one repeated content hash inside a staging table.
type HashCount struct {
	Tabela string `db:"tabela" json:"tabela"`
	Hash   string `db:"id_linha_hash" json:"id_linha_hash"`
	Count  int    `db:"qtd" json:"qtd"`
}

var (
	RunStatusRunning  = "running"
	RunStatusClean    = "clean"
	RunStatusCritical = "critical"
	RunStatusFailed   = "failed"
)

// PipelineRun represents the 'pipeline_runs' table, one row per pipeline
// invocation.
type PipelineRun struct {
	ID            int64         `db:"id" json:"id"`
	StartedAt     time.Time     `db:"started_at" json:"started_at"`
	FinishedAt    *time.Time    `db:"finished_at" json:"finished_at,omitempty"`
	Years         pq.Int64Array `db:"years" json:"years"`
	Status        string        `db:"status" json:"status"`
	CriticalCount int           `db:"critical_count" json:"critical_count"`
	AdvisoryCount int           `db:"advisory_count" json:"advisory_count"`
	ReportDir     string        `db:"report_dir" json:"report_dir"`
}
