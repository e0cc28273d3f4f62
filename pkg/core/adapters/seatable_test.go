package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chenyu-w/seasync/pkg/types"
)

// newSeaTableServer 模拟 dtable 服务端，授权接口和行接口同源
func newSeaTableServer(t *testing.T, rowsHandler http.HandlerFunc) *httptest.Server {
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/api/v2.1/dtable/app-access-token/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token": "access", "dtable_uuid": "uuid-1", "dtable_server": srv.URL,
		})
	})
	mux.HandleFunc("/api/v1/dtables/uuid-1/rows/", rowsHandler)

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func TestSeaTableAdapter_GetRows(t *testing.T) {
	srv := newSeaTableServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Query().Get("table_name") != "工时表" || r.URL.Query().Get("view_name") != "默认视图" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"rows": []map[string]interface{}{
				{"_id": "r1", "项目": "X", "工时": 3},
			},
		})
	})

	adapter, err := NewSeaTableAdapter(&AdapterConfig{
		Type: types.AdapterTypeSeaTable, ServerURL: srv.URL, APIToken: "test-token",
	})
	if err != nil {
		t.Fatal(err)
	}

	rows, err := adapter.GetRows(context.Background(), "工时表", "默认视图")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ID() != "r1" {
		t.Fatalf("got rows %v", rows)
	}
}

func TestSeaTableAdapter_ModifyRowsStaleIDs(t *testing.T) {
	srv := newSeaTableServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error_msg": "row ids not exist: old1"})
	})

	adapter, err := NewSeaTableAdapter(&AdapterConfig{
		Type: types.AdapterTypeSeaTable, ServerURL: srv.URL, APIToken: "test-token",
	})
	if err != nil {
		t.Fatal(err)
	}

	err = adapter.ModifyRows(context.Background(), "工时表",
		[]types.Row{{types.RowIDField: "old1"}}, []types.RowUpdate{{"工时": 1}})
	// 远端的行标识失效错误要映射为可检测的信号
	if !types.IsRowIDsNotExist(err) {
		t.Fatalf("got %v", err)
	}
}

func TestSeaTableAdapter_ModifyRowsPairing(t *testing.T) {
	adapter, err := NewSeaTableAdapter(&AdapterConfig{
		Type: types.AdapterTypeSeaTable, ServerURL: "http://localhost", APIToken: "t",
	})
	if err != nil {
		t.Fatal(err)
	}

	err = adapter.ModifyRows(context.Background(), "t",
		[]types.Row{{types.RowIDField: "r1"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "pair") {
		t.Fatalf("got %v", err)
	}
}

func TestNew_AdapterRegistry(t *testing.T) {
	if _, err := New(&AdapterConfig{Type: "oracle"}); err == nil {
		t.Fatal("expected undefined adapter error")
	}

	adapter, err := New(&AdapterConfig{
		Type: types.AdapterTypeSeaTable, ServerURL: "http://localhost", APIToken: "t",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := adapter.(*SeaTableAdapter); !ok {
		t.Fatalf("got %T", adapter)
	}

	// 必填参数缺失
	if _, err := New(&AdapterConfig{Type: types.AdapterTypeSeaTable}); err == nil {
		t.Fatal("expected missing server_url error")
	}
}
