package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/habilita/habilita/internal/habilitacion"
)

func (c *Client) ListPrestadores(ctx context.Context) ([]habilitacion.Prestador, error) {
	return listAll[habilitacion.Prestador](ctx, c, "/prestadores/", nil)
}

func (c *Client) ListServicios(ctx context.Context) ([]habilitacion.ServicioSede, error) {
	return listAll[habilitacion.ServicioSede](ctx, c, "/servicios-sede/", nil)
}

func (c *Client) ListAutoevaluaciones(ctx context.Context) ([]habilitacion.Autoevaluacion, error) {
	return listAll[habilitacion.Autoevaluacion](ctx, c, "/autoevaluaciones/", nil)
}

func (c *Client) GetAutoevaluacion(ctx context.Context, id int64) (habilitacion.Autoevaluacion, error) {
	var out habilitacion.Autoevaluacion
	err := c.getJSON(ctx, fmt.Sprintf("/autoevaluaciones/%d/", id), nil, &out)
	return out, err
}

func (c *Client) ListCriterios(ctx context.Context) ([]habilitacion.Criterio, error) {
	return listAll[habilitacion.Criterio](ctx, c, "/criterios/", nil)
}

func (c *Client) ListEvaluaciones(ctx context.Context, autoevaluacionID int64) ([]habilitacion.Evaluacion, error) {
	return listAll[habilitacion.Evaluacion](ctx, c, "/evaluaciones/", byAutoevaluacion(autoevaluacionID))
}

func (c *Client) ListCumplimientos(ctx context.Context) ([]habilitacion.Cumplimiento, error) {
	return listAll[habilitacion.Cumplimiento](ctx, c, "/cumplimientos/", nil)
}

func (c *Client) ListPlanes(ctx context.Context) ([]habilitacion.PlanMejora, error) {
	return listAll[habilitacion.PlanMejora](ctx, c, "/planes-mejora/", nil)
}

// ListHallazgos lists findings; autoevaluacionID 0 returns all of them.
func (c *Client) ListHallazgos(ctx context.Context, autoevaluacionID int64) ([]habilitacion.Hallazgo, error) {
	return listAll[habilitacion.Hallazgo](ctx, c, "/hallazgos/", byAutoevaluacion(autoevaluacionID))
}

func (c *Client) UpdateAutoevaluacionEstado(ctx context.Context, id int64, in habilitacion.EstadoUpdate) (habilitacion.Autoevaluacion, error) {
	var out habilitacion.Autoevaluacion
	err := c.sendJSON(ctx, http.MethodPatch, fmt.Sprintf("/autoevaluaciones/%d/", id), in, &out)
	return out, err
}

func (c *Client) UpdatePlan(ctx context.Context, id int64, in habilitacion.PlanUpdate) (habilitacion.PlanMejora, error) {
	var out habilitacion.PlanMejora
	err := c.sendJSON(ctx, http.MethodPatch, fmt.Sprintf("/planes-mejora/%d/", id), in, &out)
	return out, err
}

func byAutoevaluacion(id int64) url.Values {
	if id <= 0 {
		return nil
	}
	return url.Values{"autoevaluacion": {strconv.FormatInt(id, 10)}}
}
