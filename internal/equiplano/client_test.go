package equiplano

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/farxc/orcamento-monitor/internal/logger"
)

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(srv.URL, &logger.Logger{MinLevel: logger.LevelError})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.Backoff = time.Millisecond
	return c
}

const stageCSV = "Exercício;Entidade;Valor Empenhado\n2023;Prefeitura;1.500,00\n"

func TestFetchStageCSVDirectAnchor(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/transparencia/despesaEmpenhada/listaAno", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("formulario.exercicio") != "2023" {
			http.Error(w, "missing year", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><a href="/transparencia/export.csv">Exportar CSV</a></body></html>`))
	})
	mux.HandleFunc("/transparencia/export.csv", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(stageCSV))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := testClient(t, srv).FetchStageCSV(context.Background(), StageEmpenhadas, 2023)
	if err != nil {
		t.Fatalf("FetchStageCSV: %v", err)
	}
	if string(got) != stageCSV {
		t.Errorf("unexpected CSV body: %q", got)
	}
}

func TestFetchStageCSVExportFlagVariant(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/transparencia/despesaLiquidada/listaAno", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("d-148-e") == "1" && q.Get("6578706f7274") == "1" {
			w.Header().Set("Content-Type", "application/csv")
			w.Write([]byte(stageCSV))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><table id="row"><a href="?d-148-p=2">2</a></table></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := testClient(t, srv).FetchStageCSV(context.Background(), StageLiquidadas, 2022)
	if err != nil {
		t.Fatalf("FetchStageCSV: %v", err)
	}
	if string(got) != stageCSV {
		t.Errorf("unexpected CSV body: %q", got)
	}
}

func TestFetchStageCSVFormPost(t *testing.T) {
	var posted map[string][]string
	mux := http.NewServeMux()
	mux.HandleFunc("/transparencia/despesaPaga/listaDespesaPagaPorAno", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>
			<form action="/transparencia/despesaPaga/exporta" method="post">
			<input name="token" value="abc"/>
			</form></body></html>`))
	})
	mux.HandleFunc("/transparencia/despesaPaga/exporta", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		posted = r.PostForm
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(stageCSV))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := testClient(t, srv).FetchStageCSV(context.Background(), StagePagas, 2021)
	if err != nil {
		t.Fatalf("FetchStageCSV: %v", err)
	}
	if posted["token"] == nil || posted["token"][0] != "abc" {
		t.Errorf("form fields not carried: %v", posted)
	}
	if posted["6578706f7274"] == nil {
		t.Error("export marker missing from form POST")
	}
	if posted["formulario.exercicio"] == nil || posted["formulario.exercicio"][0] != "2021" {
		t.Errorf("year filter missing from form POST: %v", posted)
	}
}

func TestFetchStageCSVAllPathsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>sem dados</body></html>`))
	}))
	defer srv.Close()

	if _, err := testClient(t, srv).FetchStageCSV(context.Background(), StageEmpenhadas, 2020); err == nil {
		t.Fatal("expected error when the portal never yields CSV")
	}
}

func TestFetchStageCSVRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(stageCSV))
	}))
	defer srv.Close()

	got, err := testClient(t, srv).FetchStageCSV(context.Background(), StageEmpenhadas, 2023)
	if err != nil {
		t.Fatalf("FetchStageCSV after retries: %v", err)
	}
	if string(got) != stageCSV {
		t.Errorf("unexpected body: %q", got)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestFetchAnexo10PDF(t *testing.T) {
	var posted map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/process") {
			http.NotFound(w, r)
			return
		}
		r.ParseForm()
		posted = r.PostForm
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	got, err := testClient(t, srv).FetchAnexo10PDF(context.Background(), 2024, nil)
	if err != nil {
		t.Fatalf("FetchAnexo10PDF: %v", err)
	}
	if !strings.HasPrefix(string(got), "%PDF") {
		t.Errorf("expected PDF bytes, got %q", got[:10])
	}
	if posted["formulario.exercicio"][0] != "2024" {
		t.Errorf("year missing from payload: %v", posted["formulario.exercicio"])
	}
	if posted["formulario.tpFormatoExterno"][0] != "PDF" {
		t.Error("format flag missing from payload")
	}
	if posted["formulario.seletorEntidades.itens[0].objeto.codEntidade"] == nil {
		t.Error("entity roster missing from payload")
	}
}

func TestFetchAnexo10PDFRejectsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>sessão expirada</body></html>"))
	}))
	defer srv.Close()

	if _, err := testClient(t, srv).FetchAnexo10PDF(context.Background(), 2024, nil); err == nil {
		t.Fatal("expected error for HTML response")
	}
}

func TestFileNames(t *testing.T) {
	if got := StageFileName(StagePagas, 2023); got != "equiplano_pagas_ano2023.csv" {
		t.Errorf("StageFileName = %q", got)
	}
	if got := PDFFileName(2021); got != "2021-12-31_anexo10_prev_arrec.pdf" {
		t.Errorf("PDFFileName = %q", got)
	}
}
