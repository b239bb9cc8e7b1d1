package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wurt83ow/backoffice-client/pkg/backend"
	"github.com/wurt83ow/backoffice-client/pkg/bdkeeper"
	"github.com/wurt83ow/backoffice-client/pkg/coordinator"
	"github.com/wurt83ow/backoffice-client/pkg/models"
	"github.com/wurt83ow/backoffice-client/pkg/offlinequeue"
	"github.com/wurt83ow/backoffice-client/pkg/storage"
)

type switchConn struct{ online atomic.Bool }

func (c *switchConn) IsOnline() bool { return c.online.Load() }

type call struct {
	Method         string
	Path           string
	ContentType    string
	IdempotencyKey string
	Body           []byte
}

type fakeAPI struct {
	mu        sync.Mutex
	calls     []call
	inventory string
	menu      string
	status    int
	delay     time.Duration
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, call{r.Method, r.URL.RequestURI(), r.Header.Get("Content-Type"), r.Header.Get("Idempotency-Key"), body})
	status, inventory, menu, delay := f.status, f.inventory, f.menu, f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status != 0 {
		http.Error(w, "rejected", status)
		return
	}
	switch {
	case r.Method == http.MethodGet && r.URL.Path == backend.InventoryPath:
		w.Write([]byte(inventory))
	case r.Method == http.MethodGet && r.URL.Path == backend.MenuPath:
		w.Write([]byte(menu))
	case r.Method == http.MethodGet && r.URL.Path == "/sales/report":
		w.Write([]byte(`{"lines":[{"name":"soup","quantity":2,"revenue":9},{"name":"steak","quantity":1,"revenue":25}]}`))
	case r.Method == http.MethodGet:
		w.Write([]byte(`[]`))
	default:
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"new"}`))
	}
}

func (f *fakeAPI) writes() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Method != http.MethodGet {
			out = append(out, c)
		}
	}
	return out
}

type fixture struct {
	svc   *Service
	api   *fakeAPI
	conn  *switchConn
	queue *offlinequeue.Queue
}

func setup(t *testing.T, opts ...coordinator.Option) *fixture {
	t.Helper()
	api := &fakeAPI{inventory: `[]`, menu: `[]`}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	client, err := backend.NewClient(srv.URL)
	require.NoError(t, err)

	keeper, err := bdkeeper.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { keeper.Close() })

	conn := &switchConn{}
	conn.online.Store(true)
	queue := offlinequeue.New(keeper, nil)
	opts = append([]coordinator.Option{coordinator.WithRequestTimeout(time.Second)}, opts...)
	coord := coordinator.New(conn, queue, opts...)
	cache := storage.New(keeper, conn, 0, nil)

	return &fixture{
		svc:   NewServices(client, coord, cache),
		api:   api,
		conn:  conn,
		queue: queue,
	}
}

func TestAddInventoryItem_Online(t *testing.T) {
	f := setup(t)

	res, err := f.svc.AddInventoryItem(context.Background(), models.InventoryItem{Name: "flour", Quantity: 5, Threshold: 10})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Queued)
	assert.JSONEq(t, `{"id":"new"}`, string(res.Body))

	writes := f.api.writes()
	require.Len(t, writes, 1)
	assert.Equal(t, http.MethodPost, writes[0].Method)
	assert.Equal(t, "/inventory", writes[0].Path)
	assert.JSONEq(t, `{"name":"flour","category":"","unit":"","quantity":5,"threshold":10}`, string(writes[0].Body))
	assert.NotEmpty(t, writes[0].IdempotencyKey)
}

func TestWrites_TimedOutDirectWriteIsNotQueued(t *testing.T) {
	f := setup(t, coordinator.WithQueueOnNetworkError(), coordinator.WithRequestTimeout(50*time.Millisecond))
	f.api.set(func(a *fakeAPI) { a.delay = 200 * time.Millisecond })

	_, err := f.svc.TransferStock(context.Background(), "7", models.StockTransfer{Quantity: 3, FromLocation: "cellar", ToLocation: "kitchen"})
	assert.ErrorIs(t, err, backend.ErrNetworkUnavailable)

	actions, err := f.queue.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, actions, "a write the backend may have applied must not be replayed")

	writes := f.api.writes()
	require.Len(t, writes, 1)
	assert.NotEmpty(t, writes[0].IdempotencyKey)
}

func TestWrites_RefusedDirectWriteIsQueued(t *testing.T) {
	f := setup(t, coordinator.WithQueueOnNetworkError())
	refused := httptest.NewServer(http.NotFoundHandler())
	refused.Close()
	client, err := backend.NewClient(refused.URL)
	require.NoError(t, err)
	f.svc.client = client

	res, err := f.svc.DeleteInventoryItem(context.Background(), "7")
	require.NoError(t, err)
	assert.True(t, res.Queued)

	actions, err := f.queue.List(context.Background())
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.NotEmpty(t, actions[0].RequestID)
}

func TestWrites_OfflineAreQueuedInOrder(t *testing.T) {
	f := setup(t)
	f.conn.online.Store(false)
	ctx := context.Background()

	res, err := f.svc.AddInventoryItem(ctx, models.InventoryItem{Name: "flour", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, models.QueuedResult(), res)

	_, err = f.svc.UpdateInventoryItem(ctx, "7", models.InventoryItem{Name: "flour", Quantity: 2})
	require.NoError(t, err)
	_, err = f.svc.TransferStock(ctx, "7", models.StockTransfer{Quantity: 1, FromLocation: "cellar", ToLocation: "kitchen"})
	require.NoError(t, err)
	_, err = f.svc.DeleteInventoryItem(ctx, "7")
	require.NoError(t, err)

	assert.Empty(t, f.api.writes())

	actions, err := f.queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 4)
	assert.Equal(t, ActionAddInventoryItem, actions[0].Action)
	assert.Equal(t, ActionUpdateInventoryItem, actions[1].Action)
	assert.Equal(t, "/inventory/7", actions[1].Endpoint)
	assert.Equal(t, http.MethodPut, actions[1].Method)
	assert.Equal(t, ActionTransferStock, actions[2].Action)
	assert.Equal(t, "/inventory/7/transfer", actions[2].Endpoint)
	assert.Equal(t, ActionDeleteInventoryItem, actions[3].Action)
	assert.Empty(t, actions[3].Payload)
}

func TestWrites_RejectionPropagates(t *testing.T) {
	f := setup(t)
	f.api.set(func(a *fakeAPI) { a.status = http.StatusConflict })

	_, err := f.svc.AddSpoilage(context.Background(), models.SpoilageRecord{InventoryID: "1", Quantity: 2, Reason: "expired"})
	var statusErr *backend.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusConflict, statusErr.StatusCode)

	actions, err := f.queue.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestWrites_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.AddInventoryItem(ctx, models.InventoryItem{Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.AddInventoryItem(ctx, models.InventoryItem{Name: "x", Quantity: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.TransferStock(ctx, "1", models.StockTransfer{Quantity: 1, FromLocation: "a", ToLocation: "a"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.TransferStock(ctx, "", models.StockTransfer{Quantity: 1, FromLocation: "a", ToLocation: "b"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.AddSurplus(ctx, models.SurplusRecord{InventoryID: "1"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.AddSpoilage(ctx, models.SpoilageRecord{InventoryID: "1", Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.AddMenuItem(ctx, models.MenuItem{Name: "soup", Ingredients: []models.MenuIngredient{{InventoryID: "1"}}}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.DeleteMenuItem(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, _, err = f.svc.SalesReport(ctx, time.Now(), time.Now().Add(-time.Hour))
	assert.ErrorIs(t, err, ErrInvalidInput)

	f.conn.online.Store(false)
	_, err = f.svc.TransferStock(ctx, "", models.StockTransfer{Quantity: 1, FromLocation: "a", ToLocation: "b"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Empty(t, f.api.writes())
	actions, err := f.queue.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestAddMenuItem_WithImage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	image, err := offlinequeue.Attach("", "soup.jpg", "", strings.NewReader("jpeg"))
	require.NoError(t, err)
	item := models.MenuItem{Name: "soup", Price: 4.5, Ingredients: []models.MenuIngredient{{InventoryID: "1", Quantity: 0.2}}}

	_, err = f.svc.AddMenuItem(ctx, item, &image)
	require.NoError(t, err)
	writes := f.api.writes()
	require.Len(t, writes, 1)
	assert.True(t, strings.HasPrefix(writes[0].ContentType, "multipart/form-data"))

	// Offline the image is queued with the action.
	f.conn.online.Store(false)
	_, err = f.svc.AddMenuItem(ctx, item, &image)
	require.NoError(t, err)

	actions, err := f.queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Len(t, actions[0].Attachments, 1)
	assert.Equal(t, ImageField, actions[0].Attachments[0].Field)
	assert.Equal(t, "image/jpeg", actions[0].Attachments[0].ContentType)
}

func TestListInventory_CachedForOffline(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.api.set(func(a *fakeAPI) {
		a.inventory = `[
			{"id":"1","name":"Flour","category":"dry","quantity":50,"threshold":10},
			{"id":"2","name":"Milk","category":"dairy","quantity":0,"threshold":5},
			{"id":"3","name":"Butter","category":"dairy","quantity":2,"threshold":5}
		]`
	})

	items, stale, err := f.svc.ListInventory(ctx, InventoryQuery{SortBy: SortByStatus})
	require.NoError(t, err)
	assert.False(t, stale)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"Milk", "Butter", "Flour"}, names(items))

	f.conn.online.Store(false)
	items, stale, err = f.svc.ListInventory(ctx, InventoryQuery{Category: "dairy", SortBy: SortByName})
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, []string{"Butter", "Milk"}, names(items))
}

func TestListInventory_DirectWriteInvalidatesCache(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.api.set(func(a *fakeAPI) { a.inventory = `[{"id":"1","name":"Flour"}]` })

	_, _, err := f.svc.ListInventory(ctx, InventoryQuery{})
	require.NoError(t, err)

	_, err = f.svc.DeleteInventoryItem(ctx, "1")
	require.NoError(t, err)

	f.conn.online.Store(false)
	_, _, err = f.svc.ListInventory(ctx, InventoryQuery{})
	assert.ErrorIs(t, err, storage.ErrNotCached)
}

func TestListMenu_Filters(t *testing.T) {
	f := setup(t)
	f.api.set(func(a *fakeAPI) {
		a.menu = `[
			{"id":"1","name":"Tomato Soup","category":"starters","price":4.5},
			{"id":"2","name":"Steak","category":"mains","price":25},
			{"id":"3","name":"Onion Soup","category":"Starters","price":5}
		]`
	})
	ctx := context.Background()

	items, _, err := f.svc.ListMenu(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, items, 3)

	items, _, err = f.svc.ListMenu(ctx, "starters", "")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, _, err = f.svc.ListMenu(ctx, "starters", "onion")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "3", items[0].ID)
}

func TestSalesReport(t *testing.T) {
	f := setup(t)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	report, stale, err := f.svc.SalesReport(context.Background(), from, to)
	require.NoError(t, err)
	assert.False(t, stale)
	require.Len(t, report.Lines, 2)
	assert.Equal(t, "steak", report.Lines[0].Name)
	assert.Equal(t, 34.0, report.Total)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, SalesRows(report)))
	assert.Equal(t, "Menu item,Quantity,Revenue\nsteak,1,25.00\nsoup,2,9.00\nTotal,,34.00\n", buf.String())
}

func names(items []models.InventoryItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Name
	}
	return out
}

func TestInventoryQuery_Apply(t *testing.T) {
	items := []models.InventoryItem{
		{Name: "flour", Category: "Dry", Quantity: 40, Threshold: 10},
		{Name: "Eggs", Category: "Dairy", Quantity: 4, Threshold: 12},
		{Name: "cream", Category: "Dairy", Quantity: 9, Threshold: 12},
		{Name: "salt", Category: "Dry", Quantity: 0, Threshold: 1},
	}

	tests := []struct {
		name  string
		query InventoryQuery
		want  []string
	}{
		{"no query keeps order", InventoryQuery{}, []string{"flour", "Eggs", "cream", "salt"}},
		{"search name", InventoryQuery{Search: "EG"}, []string{"Eggs"}},
		{"search category", InventoryQuery{Search: "dair"}, []string{"Eggs", "cream"}},
		{"category", InventoryQuery{Category: "dry"}, []string{"flour", "salt"}},
		{"status", InventoryQuery{Status: models.StockLow}, []string{"cream"}},
		{"sort name", InventoryQuery{SortBy: SortByName}, []string{"cream", "Eggs", "flour", "salt"}},
		{"sort quantity desc", InventoryQuery{SortBy: SortByQuantity, Desc: true}, []string{"flour", "cream", "Eggs", "salt"}},
		{"sort status", InventoryQuery{SortBy: SortByStatus}, []string{"salt", "Eggs", "cream", "flour"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(tt.query.Apply(items)))
		})
	}
	assert.Equal(t, "flour", items[0].Name, "Apply must not reorder its input")
}

func TestLowStock(t *testing.T) {
	items := []models.InventoryItem{
		{Name: "ok", Quantity: 20, Threshold: 10},
		{Name: "low", Quantity: 8, Threshold: 10},
		{Name: "out", Quantity: 0, Threshold: 10},
	}
	assert.Equal(t, []string{"out", "low"}, names(LowStock(items)))
}

func TestInventoryRows(t *testing.T) {
	rows := InventoryRows([]models.InventoryItem{{ID: "1", Name: "flour", Unit: "kg", Quantity: 2.5, Threshold: 10}})
	require.Len(t, rows, 2)
	assert.Equal(t, inventoryHeader, rows[0])
	assert.Equal(t, []string{"1", "flour", "", "2.5", "kg", "10", models.StockCritical, "", ""}, rows[1])

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))
	assert.True(t, strings.HasPrefix(buf.String(), "ID,Name,Category,"))
}
