package triggers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/chenyu-w/seasync/pkg/tools"
	"github.com/chenyu-w/seasync/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

func newWebTrigger(t *testing.T, ctx context.Context) (*HttpTrigger, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	config := &HttpTriggerConfig{}
	if err := tools.BuildDefault(config); err != nil {
		t.Fatal(err)
	}

	trigger := &HttpTrigger{
		requests: make(chan *types.RunRequest, config.PreRequestsLen),
		ctx:      ctx, conf: config, wg: new(sync.WaitGroup),
	}
	engine := gin.New()
	engine.POST(config.PushPath, trigger.httpAcceptHandle)

	return trigger, engine
}

func TestHttpTrigger_AcceptAndRead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trigger, engine := newWebTrigger(t, ctx)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sync", strings.NewReader(`{"rules_file":"x.json"}`))
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("code %d: %s", w.Code, w.Body.String())
	}

	request, err := trigger.Read()
	if err != nil {
		t.Fatal(err)
	}
	if request.RulesFile != "x.json" {
		t.Fatalf("got %q", request.RulesFile)
	}
	if err := trigger.Complete(request); err != nil {
		t.Fatal(err)
	}

	// 空请求体触发默认规则文件的运行
	w2 := httptest.NewRecorder()
	engine.ServeHTTP(w2, httptest.NewRequest(http.MethodPost, "/sync", nil))
	if w2.Code != http.StatusAccepted {
		t.Fatalf("code %d", w2.Code)
	}
	request2, err := trigger.Read()
	if err != nil {
		t.Fatal(err)
	}
	if request2.RulesFile != "" {
		t.Fatalf("got %q", request2.RulesFile)
	}
}

func TestHttpTrigger_BadRequestBody(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, engine := newWebTrigger(t, ctx)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync", strings.NewReader("{bad")))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code %d", w.Code)
	}
}

func TestHttpTrigger_ReadAfterClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	trigger, _ := newWebTrigger(t, ctx)

	cancel()
	if _, err := trigger.Read(); !errors.Is(err, ErrTriggerClosed) {
		t.Fatalf("got %v", err)
	}
}
