package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/river-data-aggregation/internal/hydro"
)

// MaxRecords is the most records a hubeau query may match.
const MaxRecords = 20000

// Endpoint describes one hubeau resource and the query keys it accepts.
type Endpoint struct {
	Name   string
	Path   string
	Fields []string
}

func (e Endpoint) allows(key string) bool {
	for _, f := range e.Fields {
		if f == key {
			return true
		}
	}
	return false
}

// Params are query parameters. Values may be string, []string, time.Time,
// int, float64 or bool; nil values are skipped.
type Params map[string]any

// BuildURL validates params against the endpoint and encodes them.
// List values are joined with commas and times are sent as dates.
func BuildURL(base string, ep Endpoint, params Params) (string, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		if !ep.allows(k) {
			return "", &hydro.ValidationError{
				Field: "parameter",
				Value: k,
				Valid: ep.Fields,
				Msg:   fmt.Sprintf("the parameter %q is not available for the %s endpoint", k, ep.Name),
			}
		}
		v, ok := formatParam(params[k])
		if !ok {
			continue
		}
		values.Set(k, v)
	}

	u := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(ep.Path, "/")
	if len(values) > 0 {
		u += "?" + values.Encode()
	}
	return u, nil
}

func formatParam(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []string:
		if len(t) == 0 {
			return "", false
		}
		return strings.Join(t, ","), true
	case time.Time:
		if t.IsZero() {
			return "", false
		}
		return t.UTC().Format("2006-01-02"), true
	case int:
		return strconv.Itoa(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprint(t), true
	}
}

type hubeauPage struct {
	Count int              `json:"count"`
	Next  *string          `json:"next"`
	Data  []map[string]any `json:"data"`
}

type hubeauError struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	FieldErrors []struct {
		Code    string `json:"code"`
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"field_errors"`
}

// pageFetcher walks a hubeau result set: 206 means more pages follow at
// the server's "next" URL, 200 is the last page.
type pageFetcher struct {
	exec *executor
	base string
}

// Fetch returns every record of the query. A zero count yields nil.
func (f *pageFetcher) Fetch(ctx context.Context, ep Endpoint, params Params) ([]map[string]any, error) {
	u, err := BuildURL(f.base, ep, params)
	if err != nil {
		return nil, err
	}

	var data []map[string]any
	for u != "" {
		resp, err := f.exec.get(ctx, u)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			return nil, hubeauFailure(resp)
		}
		if len(resp.Body) == 0 {
			break
		}

		var page hubeauPage
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return nil, &hydro.UpstreamDataError{URL: u, StatusCode: resp.StatusCode, Err: err}
		}
		if page.Count > MaxRecords {
			return nil, &hydro.UpstreamLimitError{URL: u, Count: page.Count, Limit: MaxRecords}
		}
		if page.Count == 0 {
			return nil, nil
		}
		data = append(data, page.Data...)

		if resp.StatusCode != http.StatusPartialContent || page.Next == nil {
			break
		}
		u = *page.Next
	}
	return data, nil
}

// hubeauFailure surfaces the server's field errors verbatim when present.
func hubeauFailure(resp *response) error {
	var body hubeauError
	if err := json.Unmarshal(resp.Body, &body); err == nil && len(body.FieldErrors) > 0 {
		msgs := make([]string, 0, len(body.FieldErrors))
		for _, fe := range body.FieldErrors {
			msgs = append(msgs, fe.Field+": "+fe.Message)
		}
		return &hydro.UpstreamDataError{URL: resp.URL, StatusCode: resp.StatusCode, Messages: msgs}
	}
	return resp.transportError()
}
