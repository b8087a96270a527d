package equiplano

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

const anexo10Path = "/transparencia/execucaoOrcamentariaAnexo10ComparativoDaReceitaPrevistaComArrecadada"

// Entity is one consolidated reporting unit of the municipality. The report
// form wants the full roster spelled out item by item.
type Entity struct {
	Code int
	Name string
	Kind string
}

// DefaultEntities is the consolidation roster published by the portal.
var DefaultEntities = []Entity{
	{483, "Administração dos Cemitérios e Serviços Funerários de Londrina - ACESF", "AUTARQUIA"},
	{482, "Autarquia Municipal de Saúde - AMS", "AUTARQUIA"},
	{486, "Caixa de Assist.Aposent. Pensões dos Servidores Municipais de Londrina", "AUTARQUIA"},
	{481, "Câmara Municipal de Londrina", "CAMARA"},
	{488, "Fundação de Esportes de Londrina", "AUTARQUIA"},
	{484, "Fundo de Assistência à Saúde dos Servidores Municipais de Londrina ", "AUTARQUIA"},
	{485, "Fundo de Previdência Social dos Servidores Municipais de Londrina ", "FUNDO_PREVIDENCIA"},
	{487, "Fundo de Urbanização de Londrina", "NAO_ENUMERADO"},
	{406, "Fundo Municipal de Saúde de Londrina", "AUTARQUIA"},
	{490, "Instituto de Desenvolvimento de Londrina - CODEL", "AUTARQUIA"},
	{489, "Instituto de Pesquisa e Planejamento Urbano de Londrina - IPPUL", "AUTARQUIA"},
	{480, "Prefeitura do Município de Londrina", "PREFEITURA"},
}

// FetchAnexo10PDF asks the portal to render the yearly budget-versus-
// collected revenue report as PDF for the given entities. A nil roster
// means every default entity.
func (c *Client) FetchAnexo10PDF(ctx context.Context, year int, entities []Entity) ([]byte, error) {
	const component = "EquiplanoClient"

	if len(entities) == 0 {
		entities = DefaultEntities
	}
	processURL, err := c.resolve(anexo10Path + "/process")
	if err != nil {
		return nil, err
	}
	referer, err := c.resolve(anexo10Path)
	if err != nil {
		return nil, err
	}

	payload := anexo10Payload(year, entities)
	resp, body, err := c.postForm(ctx, processURL, payload, referer)
	if err != nil {
		return nil, fmt.Errorf("requesting anexo 10 PDF for year %d: %w", year, err)
	}
	if !contentIsPDF(resp, body) {
		return nil, fmt.Errorf("anexo 10 request for year %d returned %s, not PDF", year, resp.Header.Get("Content-Type"))
	}
	c.logger.Info(component, "Anexo 10 PDF fetched: year=%d entities=%d size=%d bytes", year, len(entities), len(body))
	return body, nil
}

func anexo10Payload(year int, entities []Entity) url.Values {
	payload := url.Values{
		"formulario.exercicio":                 {strconv.Itoa(year)},
		"formulario.mesFinal":                  {"12"},
		"formulario.previsaoAnexo10Receitas":   {"1"},
		"formulario.nrPaginaInicial":           {"1"},
		"formulario.imprimirApenasResumo":      {"true"},
		"formulario.detalharPorFonteRecurso":   {"true"},
		"formulario.incluirContasSemMovimento": {"true"},
		"formulario.tpFormatoExterno":          {"PDF"},
	}
	for i, e := range entities {
		prefix := fmt.Sprintf("formulario.seletorEntidades.itens[%d].", i)
		payload.Set(prefix+"objeto.codEntidade", strconv.Itoa(e.Code))
		payload.Set(prefix+"objeto.nome", e.Name)
		payload.Set(prefix+"objeto.tipoEntidade", e.Kind)
		payload.Set(prefix+"selecionado", "true")
	}
	return payload
}

// PDFFileName is the canonical on-disk name for a fetched yearly report.
// The date suffix is what the parser's year inference keys on.
func PDFFileName(year int) string {
	return fmt.Sprintf("%d-12-31_anexo10_prev_arrec.pdf", year)
}
