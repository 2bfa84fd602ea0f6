package anaplan_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/planning-engine/anaplan"
	"github.com/warp/planning-engine/logger"
	"github.com/warp/planning-engine/planning"
)

// =============================================================================
// FAKE UPSTREAM
// =============================================================================

const (
	testToken     = "tok-123"
	testWorkspace = "ws1:m1"
	modelBase     = "/workspaces/ws1/models/m1"
)

var exportChunks = []string{
	"Region,Product,Units,Price,Gross,Owner,Notes\n" +
		"North,Widget,10,2.5,25,Ann,a\n" +
		"North,Gadget,0,3,0,Bob,b\n" +
		"\n" +
		"South,Widget,20,n/a,0,Ann,c\n",
	"South,Gadget,5,4,20,Cid,d\n",
}

type fakeUpstream struct {
	server      *httptest.Server
	listCalls   atomic.Int32
	importCalls atomic.Int32
	failImports atomic.Bool
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	f := &fakeUpstream{}
	r := chi.NewRouter()

	r.Post("/auth", func(w http.ResponseWriter, r *http.Request) {
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte("ann@example.com:secret"))
		if r.Header.Get("Authorization") != want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]any{"tokenInfo": map[string]any{"tokenValue": testToken}})
	})

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "AnaplanAuthToken "+testToken {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
			})
		})

		r.Get("/workspaces", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"workspaces": []map[string]string{{"id": "ws1", "name": "Finance"}}})
		})
		r.Get("/workspaces/ws1/models", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"models": []map[string]string{{"id": "m1", "name": "FP&A"}}})
		})
		r.Get(modelBase+"/lists", func(w http.ResponseWriter, r *http.Request) {
			f.listCalls.Add(1)
			writeJSON(w, map[string]any{"lists": []map[string]any{
				{"id": "L1", "name": "Region"},
				{"id": "L2", "name": "Product", "parent": map[string]string{"id": "L1", "name": "Region"}},
			}})
		})
		r.Get(modelBase+"/lists/L1/items", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"listItems": []map[string]any{
				{"id": "r-n", "name": "North"},
				{"id": "r-s", "name": "South"},
			}})
		})
		r.Get(modelBase+"/lists/L2/items", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"listItems": []map[string]any{
				{"id": "p-w", "name": "Widget", "parent": map[string]string{"id": "r-n"}},
				{"id": "p-g", "name": "Gadget", "parent": map[string]string{"id": "r-s"}},
			}})
		})
		r.Get(modelBase+"/modules", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"modules": []map[string]any{
				{"id": "M1", "name": "Revenue", "dimensions": []map[string]string{{"id": "L1"}, {"id": "L2"}}},
				{"id": "M2", "name": "Notes"},
			}})
		})
		r.Get(modelBase+"/modules/M1/lineItems", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"items": []map[string]any{
				{"id": "li-units", "name": "Units", "format": "NUMBER"},
				{"id": "li-price", "name": "Price", "format": "Currency"},
				{"id": "li-gross", "name": "Gross", "format": "NUMBER", "formula": "Units * Price"},
				{"id": "li-owner", "name": "Owner", "format": "TEXT"},
			}})
		})
		r.Get(modelBase+"/modules/M2/lineItems", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"items": []map[string]any{
				{"id": "li-pct", "name": "Share", "format": "PERCENTAGE", "formula": ""},
			}})
		})
		r.Get(modelBase+"/versions", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"versions": []map[string]string{{"id": "v-act", "name": "Actual"}}})
		})

		r.Post(modelBase+"/modules/M1/exports", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["exportType"] != "TABULAR_SINGLE_COLUMN" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			writeJSON(w, map[string]any{"exportMetadata": map[string]string{"exportId": "exp-1"}})
		})
		r.Post(modelBase+"/exports/exp-1/tasks", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"task": map[string]string{"taskId": "t-1"}})
		})
		r.Get(modelBase+"/exports/exp-1/chunks", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"chunks": []map[string]string{{"id": "0"}, {"id": "1"}}})
		})
		r.Get(modelBase+"/exports/exp-1/chunks/0", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/csv")
			_, _ = w.Write([]byte(exportChunks[0]))
		})
		r.Get(modelBase+"/exports/exp-1/chunks/1", func(w http.ResponseWriter, r *http.Request) {
			// Second chunk arrives gzip-encoded.
			var buf bytes.Buffer
			gz := gzip.NewWriter(&buf)
			_, _ = gz.Write([]byte(exportChunks[1]))
			_ = gz.Close()
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Encoding", "gzip")
			_, _ = w.Write(buf.Bytes())
		})

		r.Post(modelBase+"/imports", func(w http.ResponseWriter, r *http.Request) {
			f.importCalls.Add(1)
			if f.failImports.Load() {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			writeJSON(w, map[string]any{"imports": []map[string]string{{"id": "imp-1"}}})
		})
		r.Post(modelBase+"/imports/imp-1/tasks", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["localeName"] != "en_US" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			writeJSON(w, map[string]any{"task": map[string]string{"taskId": "t-2"}})
		})
	})

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestAdapter(t *testing.T, f *fakeUpstream) *anaplan.Adapter {
	return anaplan.New(anaplan.Options{
		APIBase: f.server.URL,
		AuthURL: f.server.URL + "/auth",
		Timeout: 5 * time.Second,
		Logger:  logger.Nop(),
	})
}

func connectedAdapter(t *testing.T) (*anaplan.Adapter, *fakeUpstream) {
	f := newFakeUpstream(t)
	a := newTestAdapter(t, f)
	require.NoError(t, a.Connect(context.Background(), planning.Credentials{Token: testToken}))
	return a, f
}

// =============================================================================
// CONNECTION TESTS
// =============================================================================

func TestAdapter_ConnectWithPassword(t *testing.T) {
	// GIVEN: An adapter with no token
	// WHEN: Connecting with email and password
	// THEN: The exchanged token authenticates later calls
	f := newFakeUpstream(t)
	a := newTestAdapter(t, f)
	ctx := context.Background()

	err := a.Connect(ctx, planning.Credentials{Email: "ann@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.True(t, a.Connected())

	ws, err := a.Workspaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []planning.WorkspaceInfo{{ID: "ws1", Name: "Finance"}}, ws)
}

func TestAdapter_ConnectWithBadPassword(t *testing.T) {
	f := newFakeUpstream(t)
	a := newTestAdapter(t, f)

	err := a.Connect(context.Background(), planning.Credentials{Email: "ann@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.ErrorIs(t, err, planning.ErrUpstream)
	assert.False(t, a.Connected())
}

func TestAdapter_ConnectWithoutCredentials(t *testing.T) {
	f := newFakeUpstream(t)
	a := newTestAdapter(t, f)

	err := a.Connect(context.Background(), planning.Credentials{})
	assert.ErrorIs(t, err, planning.ErrInvalidRequest)
	assert.False(t, a.Connected())
}

func TestAdapter_ConnectUsesDefaults(t *testing.T) {
	f := newFakeUpstream(t)
	a := anaplan.New(anaplan.Options{
		APIBase:  f.server.URL,
		Defaults: planning.Credentials{Token: testToken},
		Logger:   logger.Nop(),
	})

	require.NoError(t, a.Connect(context.Background(), planning.Credentials{}))
	_, err := a.Workspaces(context.Background())
	assert.NoError(t, err)
}

func TestAdapter_NotConnected(t *testing.T) {
	f := newFakeUpstream(t)
	a := newTestAdapter(t, f)
	ctx := context.Background()

	_, err := a.Schema(ctx, testWorkspace)
	assert.ErrorIs(t, err, planning.ErrNotConnected)

	_, err = a.WriteCells(ctx, testWorkspace, "M1", "", nil)
	assert.ErrorIs(t, err, planning.ErrNotConnected)
}

func TestAdapter_Models(t *testing.T) {
	a, _ := connectedAdapter(t)

	models, err := a.Models(context.Background(), "ws1")
	require.NoError(t, err)
	assert.Equal(t, []planning.ModelInfo{{ID: "m1", Name: "FP&A"}}, models)
}

// =============================================================================
// SCHEMA TESTS
// =============================================================================

func TestAdapter_Schema(t *testing.T) {
	// GIVEN: A connected adapter
	// WHEN: Discovering the schema twice
	// THEN: Formats and editability are mapped, and the second call is cached
	a, f := connectedAdapter(t)
	ctx := context.Background()

	schema, err := a.Schema(ctx, testWorkspace)
	require.NoError(t, err)

	require.Len(t, schema.Dimensions, 2)
	assert.Equal(t, "L1", schema.Dimensions[1].ParentDimensionID)

	require.Len(t, schema.Modules, 2)
	rev := schema.Modules[0]
	assert.Equal(t, "M1", rev.ID)
	assert.Equal(t, []string{"L1", "L2"}, rev.DimensionIDs)
	assert.Equal(t, []planning.LineItem{
		{ID: "li-units", Name: "Units", Format: planning.FormatNumber, Editable: true},
		{ID: "li-price", Name: "Price", Format: planning.FormatCurrency, Editable: true},
		{ID: "li-gross", Name: "Gross", Format: planning.FormatNumber, Editable: false},
		{ID: "li-owner", Name: "Owner", Format: planning.FormatText, Editable: true},
	}, rev.LineItems)

	notes := schema.Modules[1]
	assert.Equal(t, "M2", notes.ID)
	require.Len(t, notes.LineItems, 1)
	assert.Equal(t, planning.FormatPercentage, notes.LineItems[0].Format)
	assert.True(t, notes.LineItems[0].Editable, "blank formula is editable")

	assert.True(t, schema.HasVersion("v-act"))

	_, err = a.Schema(ctx, testWorkspace)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.listCalls.Load())
}

func TestAdapter_ReconnectClearsSchemaCache(t *testing.T) {
	a, f := connectedAdapter(t)
	ctx := context.Background()

	_, err := a.Schema(ctx, testWorkspace)
	require.NoError(t, err)
	require.NoError(t, a.Connect(ctx, planning.Credentials{Token: testToken}))
	_, err = a.Schema(ctx, testWorkspace)
	require.NoError(t, err)

	assert.Equal(t, int32(2), f.listCalls.Load())
}

func TestAdapter_MalformedWorkspaceID(t *testing.T) {
	a, _ := connectedAdapter(t)
	ctx := context.Background()

	for _, id := range []string{"ws1", "ws1:", ":m1", "a:b:c"} {
		_, err := a.Schema(ctx, id)
		assert.ErrorIs(t, err, planning.ErrMalformedIdentifier, id)
	}

	_, err := a.WriteCells(ctx, "ws1", "M1", "", nil)
	assert.ErrorIs(t, err, planning.ErrMalformedIdentifier)
}

func TestAdapter_DimensionItems_ParentFilter(t *testing.T) {
	a, _ := connectedAdapter(t)
	ctx := context.Background()

	items, err := a.DimensionItems(ctx, testWorkspace, "L2", &planning.ParentFilter{DimensionID: "L1", ItemIDs: []string{"r-s"}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "p-g", items[0].ID)

	all, err := a.DimensionItems(ctx, testWorkspace, "L2", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAdapter_UpstreamFailure(t *testing.T) {
	a, _ := connectedAdapter(t)

	_, err := a.DimensionItems(context.Background(), testWorkspace, "missing", nil)
	assert.ErrorIs(t, err, planning.ErrUpstream)
}

// =============================================================================
// MODULE DATA TESTS
// =============================================================================

func TestAdapter_ModuleData_Normalizes(t *testing.T) {
	// GIVEN: An export split across a plain and a gzip chunk
	// WHEN: Requesting the module data unfiltered
	// THEN: Headers map to line items and dimensions, blank lines are skipped
	a, _ := connectedAdapter(t)

	resp, err := a.ModuleData(context.Background(), testWorkspace, "M1", planning.NewModuleDataRequest())
	require.NoError(t, err)

	keys := make([]string, 0, len(resp.Columns))
	for _, c := range resp.Columns {
		keys = append(keys, c.Key)
	}
	assert.Equal(t, []string{"L1", "L2", "li-units", "li-price", "li-gross", "li-owner", "col_6"}, keys)
	assert.Equal(t, planning.ColumnDimension, resp.Columns[6].Type)
	require.NotNil(t, resp.Columns[4].Editable)
	assert.False(t, *resp.Columns[4].Editable)

	assert.Equal(t, 4, resp.TotalRows)
	require.Len(t, resp.Rows, 4)

	units, _ := resp.Rows[0].Get("li-units")
	assert.Equal(t, planning.Number(10), units)

	price, _ := resp.Rows[2].Get("li-price")
	assert.Equal(t, planning.Text("n/a"), price, "unparseable numbers keep their text")

	region, _ := resp.Rows[3].Get("L1")
	assert.Equal(t, planning.Text("South"), region)

	_, ids, err := planning.DecodeRowID(resp.Rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"North", "Widget", "a"}, ids)
}

func TestAdapter_ModuleData_SelectsLineItem(t *testing.T) {
	// GIVEN: A request scoped to one numeric line item
	// WHEN: Requesting the module data
	// THEN: Other numeric value columns are dropped, text and dimensions stay
	a, _ := connectedAdapter(t)
	req := planning.NewModuleDataRequest()
	req.LineItemID = "li-units"

	resp, err := a.ModuleData(context.Background(), testWorkspace, "M1", req)
	require.NoError(t, err)

	keys := make([]string, 0, len(resp.Columns))
	for _, c := range resp.Columns {
		keys = append(keys, c.Key)
	}
	assert.Equal(t, []string{"L1", "L2", "li-units", "li-owner", "col_6"}, keys)
	require.Len(t, resp.Rows, 4)
	assert.Len(t, resp.Rows[0].Cells, 5)
	_, ok := resp.Rows[0].Get("li-price")
	assert.False(t, ok)
	units, _ := resp.Rows[0].Get("li-units")
	assert.Equal(t, planning.Number(10), units)
}

func TestAdapter_ModuleData_Filters(t *testing.T) {
	a, _ := connectedAdapter(t)
	ctx := context.Background()
	five := 5.0

	tests := []struct {
		name      string
		configure func(*planning.ModuleDataRequest)
		wantTotal int
	}{
		{
			name: "dimension filter by item name",
			configure: func(r *planning.ModuleDataRequest) {
				r.Filters = planning.DimensionFilters{"L1": {"r-s"}}
			},
			wantTotal: 2,
		},
		{
			name: "text filter",
			configure: func(r *planning.ModuleDataRequest) {
				r.LineItemFilters = map[string][]string{"li-owner": {"Ann"}}
			},
			wantTotal: 2,
		},
		{
			name: "numeric filter",
			configure: func(r *planning.ModuleDataRequest) {
				r.NumericFilters = []planning.NumericFilter{{LineItemID: "li-units", Operator: planning.OpGT, Value: &five}}
			},
			wantTotal: 2,
		},
		{
			name: "zero ignores threshold",
			configure: func(r *planning.ModuleDataRequest) {
				r.NumericFilters = []planning.NumericFilter{{LineItemID: "li-units", Operator: planning.OpZero, Value: &five}}
			},
			wantTotal: 1,
		},
		{
			name: "all tiers combined",
			configure: func(r *planning.ModuleDataRequest) {
				r.Filters = planning.DimensionFilters{"L1": {"r-s"}}
				r.NumericFilters = []planning.NumericFilter{{LineItemID: "li-units", Operator: planning.OpGT, Value: &five}}
			},
			wantTotal: 1,
		},
		{
			name: "unknown dimension is ignored",
			configure: func(r *planning.ModuleDataRequest) {
				r.Filters = planning.DimensionFilters{"nope": {"x"}}
			},
			wantTotal: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := planning.NewModuleDataRequest()
			tt.configure(&req)

			resp, err := a.ModuleData(ctx, testWorkspace, "M1", req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, resp.TotalRows)
			assert.Len(t, resp.Rows, tt.wantTotal)
		})
	}
}

func TestAdapter_ModuleData_PagePastEnd(t *testing.T) {
	a, _ := connectedAdapter(t)

	req := planning.NewModuleDataRequest()
	req.Filters = planning.DimensionFilters{"L1": {"r-n"}}
	req.Page = 3
	req.PageSize = 1

	resp, err := a.ModuleData(context.Background(), testWorkspace, "M1", req)
	require.NoError(t, err)
	assert.Empty(t, resp.Rows)
	assert.Equal(t, 2, resp.TotalRows)
}

func TestAdapter_ModuleData_UnknownModule(t *testing.T) {
	a, _ := connectedAdapter(t)

	_, err := a.ModuleData(context.Background(), testWorkspace, "M9", planning.NewModuleDataRequest())
	assert.ErrorIs(t, err, planning.ErrUnknownEntity)
}

func TestAdapter_LineItemValues(t *testing.T) {
	a, _ := connectedAdapter(t)

	values, err := a.LineItemValues(context.Background(), testWorkspace, "M1", "li-owner", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann", "Bob", "Cid"}, values)
}

// =============================================================================
// WRITE-BACK TESTS
// =============================================================================

func TestAdapter_WriteCells(t *testing.T) {
	a, f := connectedAdapter(t)

	res, err := a.WriteCells(context.Background(), testWorkspace, "M1", "v-act", []planning.CellWrite{
		{RowID: "row/0/North/Widget", ColumnKey: "li-units", Value: planning.Number(12)},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Errors)
	assert.Equal(t, int32(1), f.importCalls.Load())
}

func TestAdapter_WriteCells_FailureIsReported(t *testing.T) {
	// GIVEN: An upstream that rejects import creation
	// WHEN: Writing cells
	// THEN: The call succeeds with one error in an unsuccessful result
	a, f := connectedAdapter(t)
	f.failImports.Store(true)

	res, err := a.WriteCells(context.Background(), testWorkspace, "M1", "", []planning.CellWrite{
		{RowID: "row/0/North/Widget", ColumnKey: "li-units", Value: planning.Number(12)},
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Len(t, res.Errors, 1)
}

func TestAdapter_WriteCells_UnknownModule(t *testing.T) {
	a, f := connectedAdapter(t)

	res, err := a.WriteCells(context.Background(), testWorkspace, "M9", "", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "M9")
	assert.Equal(t, int32(0), f.importCalls.Load())
}
