package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/viewcore/pkg/driver"
	"github.com/vango-dev/viewcore/pkg/element"
	"github.com/vango-dev/viewcore/pkg/protocol"
	"github.com/vango-dev/viewcore/pkg/view"
	"github.com/vango-dev/viewcore/pkg/viewid"
	"github.com/vango-dev/viewcore/pkg/views"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func counter() driver.Funcs[int] {
	return driver.Funcs[int]{
		ViewFunc: func(n int) view.View {
			return views.Element{
				Tag:      "button",
				Children: view.Items(views.Text(strconv.Itoa(n))),
				On:       func(any) any { return "inc" },
			}
		},
		UpdateFunc: func(n int, action any) int { return n + 1 },
	}
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	logger := discardLogger()
	srv := New(func(tree element.Tree) Session {
		return driver.New[int](counter(), tree, 0, driver.WithLogger(logger))
	}, append([]Option{WithLogger(logger)}, opts...)...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws")
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return c
}

func TestSessionRoundTrip(t *testing.T) {
	srv, ts := newTestServer(t)
	c := dial(t, ts)

	sf, err := c.Next()
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if sf.Seq != 1 {
		t.Errorf("first script Seq = %d, want 1", sf.Seq)
	}
	if got, want := c.Tree().Dump(), "button\n  #text \"0\"\n"; got != want {
		t.Errorf("Dump() = %q, want %q", got, want)
	}

	button, ok := c.Tree().Find(viewid.Path{viewid.RootID})
	if !ok {
		t.Fatal("button not found")
	}
	if err := c.Emit(button, "click"); err != nil {
		t.Fatalf("Emit error: %v", err)
	}
	sf, err = c.Next()
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if len(sf.Ops) != 1 || sf.Ops[0].Kind != element.OpSetText {
		t.Errorf("second script ops = %v, want one SetText", sf.Ops)
	}
	if got, want := c.Tree().Dump(), "button\n  #text \"1\"\n"; got != want {
		t.Errorf("Dump() = %q, want %q", got, want)
	}
	if srv.Active() != 1 {
		t.Errorf("Active() = %d, want 1", srv.Active())
	}

	c.Close()
	srv.Wait()
	if srv.Active() != 0 {
		t.Errorf("Active() after close = %d, want 0", srv.Active())
	}
}

func TestInvalidFrameReported(t *testing.T) {
	_, ts := newTestServer(t)
	c := dial(t, ts)
	defer c.Close()

	if _, err := c.Next(); err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, []byte{0x09, 0, 0, 0, 0, 0}); err != nil {
		t.Fatalf("WriteMessage error: %v", err)
	}
	_, err := c.Next()
	var em *protocol.ErrorMessage
	if !errors.As(err, &em) || em.Code != protocol.ErrInvalidFrame {
		t.Errorf("Next error = %v, want InvalidFrame", err)
	}
}

func TestStaleEventIgnored(t *testing.T) {
	_, ts := newTestServer(t)
	c := dial(t, ts)
	defer c.Close()

	if _, err := c.Next(); err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if err := c.Send(element.Message{Path: viewid.Path{viewid.RootID, viewid.Key("gone")}}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	button, _ := c.Tree().Find(viewid.Path{viewid.RootID})
	_ = c.Emit(button, "click")

	sf, err := c.Next()
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if sf.Seq != 2 {
		t.Errorf("Seq = %d, want 2", sf.Seq)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	driver.NewMetrics(driver.WithRegistry(reg))
	_, ts := newTestServer(t, WithGatherer(reg))

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz = %d %v", resp.StatusCode, body)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), "viewcore_driver_cycles_total") {
		t.Errorf("metrics output missing cycles counter:\n%s", data)
	}
}

func TestMetricsRouteAbsentWithoutGatherer(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRemoteBreaksOnRejectedScript(t *testing.T) {
	remotes := make(chan *Remote, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		remotes <- NewRemote(conn, time.Second)
	}))
	t.Cleanup(ts.Close)
	c := dial(t, ts)
	defer c.Close()
	remote := <-remotes

	s := element.NewScript(&element.Allocator{})
	p := s.Create("p", viewid.Path{viewid.RootID})
	s.Insert(element.Root, 0, p)
	if err := remote.Apply(s.Take()); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if _, err := c.Next(); err != nil {
		t.Fatalf("Next error: %v", err)
	}

	s.SetAttr(p, "class", "x")
	s.SetText(element.Handle(999), "gone")
	if err := remote.Apply(s.Take()); err == nil || errors.Is(err, ErrBroken) {
		t.Fatalf("Apply of a bad script error = %v, want the mirror's rejection", err)
	}
	_, err := c.Next()
	var em *protocol.ErrorMessage
	if !errors.As(err, &em) || !em.Fatal || em.Code != protocol.ErrServerError {
		t.Errorf("Next error = %v, want fatal ServerError", err)
	}
	if got := remote.Seq(); got != 1 {
		t.Errorf("Seq() = %d, want 1", got)
	}

	mirror := remote.Mirror().Dump()
	s.RemoveAttr(p, "class")
	if err := remote.Apply(s.Take()); !errors.Is(err, ErrBroken) {
		t.Errorf("Apply after rejection error = %v, want ErrBroken", err)
	}
	if got := remote.Mirror().Dump(); got != mirror {
		t.Errorf("mirror changed after rejection: %q, want %q", got, mirror)
	}
}
