package orders_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/shop/orders"
	"github.com/aussiebroadwan/shopauth/pkg/shopsdk"
	"github.com/aussiebroadwan/shopauth/pkg/signx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type postCall struct {
	path  string
	body  string
	query signx.Params
}

// fakeCaller serves pages keyed by page token ("" for the first page).
type fakeCaller struct {
	pages map[string]string
	calls []postCall
	err   error
}

func (f *fakeCaller) Post(_ context.Context, path string, body any, query signx.Params) (*shopsdk.APIResponse, error) {
	raw, err := signx.CanonicalBody(body)
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, postCall{path: path, body: string(raw), query: query.Clone()})
	if f.err != nil {
		return nil, f.err
	}

	data, ok := f.pages[query["page_token"]]
	if !ok {
		return nil, errors.New("unexpected page token")
	}
	return &shopsdk.APIResponse{Code: 0, Data: json.RawMessage(data)}, nil
}

func TestSearchByCreated_FollowsPagesFiltersAndSorts(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{pages: map[string]string{
		"":   `{"orders":[{"id":"o1","create_time":1500},{"id":"o2","create_time":999}],"next_page_token":"p2"}`,
		"p2": `{"orders":[{"id":"o3","create_time":"1800"},{"id":"o4","create_time":2000}],"next_page_token":"p3"}`,
		"p3": `{"orders":[{"id":"o5","create_time":1000,"status":"AWAITING_SHIPMENT"}],"next_page_token":""}`,
	}}
	s := orders.NewSearcher(caller, slogx.Discard())

	got, err := s.SearchByCreated(context.Background(), orders.Window{Ge: 1000, Lt: 2000}, 2)
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, o := range got {
		ids[i] = o.ID
	}
	require.Equal(t, []string{"o3", "o1", "o5"}, ids)
	require.JSONEq(t, `{"id":"o5","create_time":1000,"status":"AWAITING_SHIPMENT"}`, string(got[2].Raw))

	require.Len(t, caller.calls, 3)
	first := caller.calls[0]
	require.Equal(t, orders.SearchPath, first.path)
	require.Equal(t, `{"time_filter":{"create_time_ge":1000,"create_time_lt":2000}}`, first.body)
	require.Equal(t, signx.Params{"page_size": "2", "sort_order": "DESC", "sort_field": "create_time"}, first.query)
	require.Equal(t, "p2", caller.calls[1].query["page_token"])
	require.Equal(t, "p3", caller.calls[2].query["page_token"])
}

func TestSearchByCreated_DefaultPageSize(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{pages: map[string]string{"": `{"orders":[]}`}}
	got, err := orders.NewSearcher(caller, nil).SearchByCreated(context.Background(), orders.Window{Ge: 0, Lt: 10}, 0)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Equal(t, "50", caller.calls[0].query["page_size"])
}

func TestSearchByCreated_Errors(t *testing.T) {
	t.Parallel()

	t.Run("invalid window", func(t *testing.T) {
		_, err := orders.NewSearcher(&fakeCaller{}, nil).SearchByCreated(context.Background(), orders.Window{Ge: 10, Lt: 10}, 50)
		require.ErrorIs(t, err, orders.ErrInvalidWindow)
	})

	t.Run("caller failure is wrapped", func(t *testing.T) {
		failed := &shopsdk.RequestFailedError{StatusCode: 400, Body: "bad"}
		caller := &fakeCaller{err: failed}

		_, err := orders.NewSearcher(caller, nil).SearchByCreated(context.Background(), orders.Window{Ge: 0, Lt: 10}, 50)
		var reqErr *shopsdk.RequestFailedError
		require.ErrorAs(t, err, &reqErr)
	})

	t.Run("repeated page token", func(t *testing.T) {
		caller := &fakeCaller{pages: map[string]string{
			"":   `{"orders":[],"next_page_token":"p2"}`,
			"p2": `{"orders":[],"next_page_token":"p2"}`,
		}}

		_, err := orders.NewSearcher(caller, nil).SearchByCreated(context.Background(), orders.Window{Ge: 0, Lt: 10}, 50)
		require.ErrorContains(t, err, "page token repeated")
	})
}

func TestWindows(t *testing.T) {
	t.Parallel()

	// 2024-03-10 20:30 UTC is 2024-03-11 03:30 in UTC+7.
	now := time.Date(2024, 3, 10, 20, 30, 0, 0, time.UTC)
	midnight := time.Date(2024, 3, 11, 0, 0, 0, 0, orders.DefaultZone).Unix()

	today := orders.Today(now, orders.DefaultZone)
	require.Equal(t, midnight, today.Ge)
	require.Equal(t, midnight+86400, today.Lt)

	week := orders.LastDays(now, orders.DefaultZone, 7)
	require.Equal(t, midnight-7*86400, week.Ge)
	require.Equal(t, midnight+86400, week.Lt)

	utc := orders.Today(now, time.UTC)
	require.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC).Unix(), utc.Ge)

	require.True(t, today.Contains(today.Ge))
	require.False(t, today.Contains(today.Lt))

	_, err := orders.Range(5, 4)
	require.ErrorIs(t, err, orders.ErrInvalidWindow)
	w, err := orders.Range(4, 5)
	require.NoError(t, err)
	require.Equal(t, orders.Window{Ge: 4, Lt: 5}, w)
}

func TestEncodeJSON(t *testing.T) {
	t.Parallel()

	empty, err := orders.EncodeJSON(nil)
	require.NoError(t, err)
	require.Equal(t, "[]\n", string(empty))

	var o orders.Order
	require.NoError(t, json.Unmarshal([]byte(`{"id":"o1","create_time":5,"buyer":"Nguyễn"}`), &o))
	out, err := orders.EncodeJSON([]orders.Order{o})
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":"o1","create_time":5,"buyer":"Nguyễn"}]`, string(out))
}
