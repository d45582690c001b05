package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/aussiebroadwan/shopauth/pkg/shopsdk"
	"github.com/aussiebroadwan/shopauth/pkg/signx"
)

// SearchPath is the order search endpoint.
const SearchPath = "/order/202309/orders/search"

// DefaultPageSize is the page size used when none is given.
const DefaultPageSize = 50

// Caller issues signed POSTs. *shopsdk.Client satisfies it.
type Caller interface {
	Post(ctx context.Context, path string, body any, query signx.Params) (*shopsdk.APIResponse, error)
}

// Order is one order as returned by the platform. Only the fields needed for
// filtering are decoded; Raw keeps the full record.
type Order struct {
	ID         string
	CreateTime int64
	Raw        json.RawMessage
}

func (o *Order) UnmarshalJSON(b []byte) error {
	var head struct {
		ID         string      `json:"id"`
		CreateTime json.Number `json:"create_time"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}

	o.ID = head.ID
	o.CreateTime = 0
	if head.CreateTime != "" {
		ts, err := strconv.ParseInt(head.CreateTime.String(), 10, 64)
		if err != nil {
			return fmt.Errorf("orders: create_time %q: %w", head.CreateTime, err)
		}
		o.CreateTime = ts
	}
	o.Raw = append(o.Raw[:0], b...)
	return nil
}

func (o Order) MarshalJSON() ([]byte, error) {
	if len(o.Raw) == 0 {
		return []byte("null"), nil
	}
	return o.Raw, nil
}

type searchBody struct {
	TimeFilter timeFilter `json:"time_filter"`
}

type timeFilter struct {
	CreateTimeGe int64 `json:"create_time_ge"`
	CreateTimeLt int64 `json:"create_time_lt"`
}

type searchPage struct {
	Orders        []Order `json:"orders"`
	NextPageToken string  `json:"next_page_token"`
	TotalCount    int     `json:"total_count"`
}

// Searcher pages through order search results.
type Searcher struct {
	caller Caller
	log    *slog.Logger
}

// NewSearcher creates a Searcher. A nil logger uses slog.Default.
func NewSearcher(caller Caller, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{caller: caller, log: logger.With("component", "orders")}
}

// SearchByCreated returns every order created inside w, newest first. It
// follows next_page_token until the platform returns none, then filters the
// results to w again since the server-side filter is not trusted to be exact.
func (s *Searcher) SearchByCreated(ctx context.Context, w Window, pageSize int) ([]Order, error) {
	if w.Lt <= w.Ge {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWindow, w)
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	body := searchBody{TimeFilter: timeFilter{CreateTimeGe: w.Ge, CreateTimeLt: w.Lt}}
	seen := make(map[string]struct{})

	var all []Order
	pageToken := ""
	for page := 1; ; page++ {
		query := signx.Params{
			"page_size":  strconv.Itoa(pageSize),
			"sort_order": "DESC",
			"sort_field": "create_time",
		}
		if pageToken != "" {
			query["page_token"] = pageToken
		}

		resp, err := s.caller.Post(ctx, SearchPath, body, query)
		if err != nil {
			return nil, fmt.Errorf("orders: search page %d: %w", page, err)
		}
		if resp.Code != 0 {
			return nil, fmt.Errorf("orders: search page %d: platform code %d: %s", page, resp.Code, resp.Message)
		}

		var data searchPage
		if err := resp.Decode(&data); err != nil {
			return nil, fmt.Errorf("orders: search page %d: %w", page, err)
		}
		all = append(all, data.Orders...)

		s.log.Debug("order page fetched",
			"page", page,
			"orders", len(data.Orders),
			"total_count", data.TotalCount,
		)

		if data.NextPageToken == "" {
			break
		}
		if _, dup := seen[data.NextPageToken]; dup {
			return nil, fmt.Errorf("orders: search page %d: page token repeated", page)
		}
		seen[data.NextPageToken] = struct{}{}
		pageToken = data.NextPageToken
	}

	filtered := all[:0]
	for _, o := range all {
		if w.Contains(o.CreateTime) {
			filtered = append(filtered, o)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreateTime > filtered[j].CreateTime
	})

	s.log.Info("order search complete", "window", w.String(), "fetched", len(all), "kept", len(filtered))
	return filtered, nil
}

// EncodeJSON writes orders as an indented JSON array.
func EncodeJSON(orders []Order) ([]byte, error) {
	if orders == nil {
		orders = []Order{}
	}
	raw, err := json.Marshal(orders)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
