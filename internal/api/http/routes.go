package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/river-data-aggregation/internal/common"
	"github.com/i474232898/river-data-aggregation/internal/hydro"
	"github.com/i474232898/river-data-aggregation/internal/store"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *hydro.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/sources", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"sources": service.Sources()})
	})

	// Live fetch, bypassing the store.
	v1.Get("/sources/:source/data", func(c *fiber.Ctx) error {
		var req dataQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		res, err := service.Fetch(c.UserContext(), c.Params("source"), hydro.DataRequest{
			Sites: req.Sites,
			Query: hydro.Query{
				Variables: []string{req.Variable},
				Frequency: req.Frequency,
				Statistic: req.Statistic,
				Start:     req.From,
				End:       req.To,
			},
		})
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(newResultsResponse(c.Params("source"), res))
	})

	v1.Get("/sources/:source/latest", func(c *fiber.Ctx) error {
		site, err := parseSiteQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if _, err := service.Client(c.Params("source")); err != nil {
			return toHTTPError(err)
		}

		table, err := service.GetLatest(c.Params("source"), site)
		if err != nil {
			if store.IsNotFound(err) {
				return fiber.NewError(fiber.StatusNotFound, "no stored data for requested site")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read stored data")
		}
		return c.JSON(table)
	})

	v1.Get("/sources/:source/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if _, err := service.Client(c.Params("source")); err != nil {
			return toHTTPError(err)
		}

		records, err := service.GetRange(c.Params("source"), req.Site, req.From, req.To)
		if err != nil {
			if store.IsNotFound(err) {
				return fiber.NewError(fiber.StatusNotFound, "no stored history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read stored history")
		}

		return c.JSON(fiber.Map{
			"source":  c.Params("source"),
			"site":    req.Site,
			"from":    req.From,
			"to":      req.To,
			"records": records,
		})
	})
}

// toHTTPError maps hydro errors onto status codes.
func toHTTPError(err error) error {
	var (
		limit    *hydro.UpstreamLimitError
		upstream *hydro.UpstreamDataError
	)
	switch {
	case hydro.IsValidation(err):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.As(err, &limit):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &upstream), hydro.IsTransient(err):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}

type siteResponse struct {
	Site   string       `json:"site"`
	Status hydro.Status `json:"status"`
	Table  *hydro.Table `json:"table,omitempty"`
	Error  string       `json:"error,omitempty"`
}

type resultsResponse struct {
	RunID  string         `json:"runId"`
	Source string         `json:"source"`
	Sites  []siteResponse `json:"sites"`
}

func newResultsResponse(source string, res *hydro.Results) resultsResponse {
	out := resultsResponse{RunID: res.RunID, Source: source}
	for _, site := range res.Sites {
		r, ok := res.BySite[site]
		if !ok {
			continue
		}
		sr := siteResponse{Site: site, Status: r.Status, Table: r.Table}
		if r.Err != nil {
			sr.Error = r.Err.Error()
		}
		out.Sites = append(out.Sites, sr)
	}
	return out
}

func parseSiteQuery(c *fiber.Ctx) (string, error) {
	site := c.Query("site")
	if err := validate.Var(site, "required"); err != nil {
		return "", errors.New("site query parameter is required")
	}
	return site, nil
}

// dataQuery holds query parameters for the live data endpoint.
type dataQuery struct {
	Sites     []string `validate:"required,min=1,max=50,dive,required"`
	Variable  string   `validate:"required"`
	Frequency string
	Statistic string
	From      time.Time `validate:"required"`
	To        time.Time `validate:"required,gtefield=From"`
}

func (d *dataQuery) bind(c *fiber.Ctx) error {
	d.Sites = common.SplitList(c.Query("site"))
	d.Variable = c.Query("variable", hydro.VariableDischarge)
	d.Frequency = c.Query("frequency")
	d.Statistic = c.Query("statistic")

	var err error
	if d.From, d.To, err = parseWindow(c); err != nil {
		return err
	}
	return nil
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Site string    `validate:"required"`
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	h.Site = c.Query("site")
	var err error
	if h.From, h.To, err = parseWindow(c); err != nil {
		return err
	}
	return nil
}

func parseWindow(c *fiber.Ctx) (time.Time, time.Time, error) {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

// parseTime tries RFC3339, a plain date, then Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.DateOnly, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339, YYYY-MM-DD or unix seconds")
}
