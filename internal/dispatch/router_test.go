package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/aurras/internal/config"
	"github.com/mattjoyce/aurras/internal/log"
	"github.com/mattjoyce/aurras/internal/nlu"
	"github.com/mattjoyce/aurras/internal/plugin"
	"github.com/mattjoyce/aurras/internal/plugin/mocks"
	"github.com/mattjoyce/aurras/internal/protocol"
)

func newRouter(t *testing.T, cfg *config.Config, descs ...*plugin.Descriptor) *Router {
	t.Helper()
	reg := plugin.NewRegistry()
	for _, d := range descs {
		require.NoError(t, reg.Add(d))
	}
	r := New(reg, cfg)
	r.logger = log.Discard()
	return r
}

func reply(text string) plugin.Handler {
	return plugin.HandlerFunc(func(ctx context.Context, req *protocol.Request) ([]byte, error) {
		return []byte(`{"response":"` + text + `"}`), nil
	})
}

func raw(out string) plugin.Handler {
	return plugin.HandlerFunc(func(ctx context.Context, req *protocol.Request) ([]byte, error) {
		return []byte(out), nil
	})
}

func desc(name string, prio int, h plugin.Handler, intents ...string) *plugin.Descriptor {
	return &plugin.Descriptor{Name: name, Priority: prio, AcceptedIntents: intents, Handler: h}
}

var getTime = nlu.Classification{Intent: "get_time", Entities: []nlu.Entity{}}

func TestDispatchPicksLowestPriority(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	best := mocks.NewMockHandler(ctrl)
	best.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, req *protocol.Request) ([]byte, error) {
			assert.Equal(t, "get_time", req.Intent)
			assert.Equal(t, "What time is it?", req.Prompt)
			assert.Equal(t, protocol.Version, req.Protocol)
			assert.Equal(t, "turn-1", req.TurnID)
			assert.NotNil(t, req.Entities)
			assert.Equal(t, "15:04", req.Config["time_format"])
			assert.False(t, req.DeadlineAt.IsZero())
			return []byte(`{"response":"14:05"}`), nil
		})
	other := mocks.NewMockHandler(ctrl) // no calls expected

	r := newRouter(t, nil,
		desc("OTHER", 5, other, "get_time"),
		&plugin.Descriptor{
			Name: "DATETIME", Priority: 0, AcceptedIntents: []string{"get_date", "get_time"},
			Handler: best, Config: map[string]any{"time_format": "15:04"},
		},
	)

	res := r.Dispatch(WithTurnID(context.Background(), "turn-1"), getTime, "What time is it?")
	assert.True(t, res.OK(), res.String())
	assert.Equal(t, "DATETIME", res.Plugin)
	assert.Equal(t, "14:05", res.Text)
}

func TestDispatchNoPluginForIntent(t *testing.T) {
	r := newRouter(t, nil, desc("DATETIME", 0, reply("x"), "get_time"))

	res := r.Dispatch(context.Background(), nlu.Classification{Intent: "book_flight"}, "book a flight")
	assert.False(t, res.OK())
	assert.Equal(t, KindNoPluginForIntent, res.Kind)
	assert.Empty(t, res.Plugin)
}

func TestDispatchFailureKinds(t *testing.T) {
	tests := []struct {
		name    string
		handler plugin.Handler
		kind    Kind
		detail  string
	}{
		{
			name: "handler error",
			handler: plugin.HandlerFunc(func(ctx context.Context, req *protocol.Request) ([]byte, error) {
				return nil, errors.New("upstream unavailable")
			}),
			kind:   KindPluginExecutionFailure,
			detail: "upstream unavailable",
		},
		{
			name: "panic",
			handler: plugin.HandlerFunc(func(ctx context.Context, req *protocol.Request) ([]byte, error) {
				var m map[string]int
				m["boom"]++
				return nil, nil
			}),
			kind:   KindPluginExecutionFailure,
			detail: "panicked",
		},
		{
			name: "plugin reported error",
			handler: raw(`{"error":"quota exhausted"}`),
			kind:    KindPluginExecutionFailure,
			detail:  "quota exhausted",
		},
		{name: "missing response", handler: raw(`{"text":"14:05"}`), kind: KindMalformedPluginResponse},
		{name: "non-string response", handler: raw(`{"response":1405}`), kind: KindMalformedPluginResponse},
		{name: "not json", handler: raw(`14:05`), kind: KindMalformedPluginResponse},
		{name: "no output", handler: raw(``), kind: KindMalformedPluginResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(t, nil,
				desc("BAD", 0, tt.handler, "get_time"),
				desc("GOOD", 1, reply("fine"), "get_time", "greet"),
			)

			res := r.Dispatch(context.Background(), getTime, "What time is it?")
			assert.False(t, res.OK())
			assert.Equal(t, tt.kind, res.Kind)
			assert.Equal(t, "BAD", res.Plugin, "no cascade by default")
			assert.Contains(t, res.Detail, tt.detail)

			// The router stays usable after a failing plugin.
			next := r.Dispatch(context.Background(), nlu.Classification{Intent: "greet"}, "hello")
			assert.True(t, next.OK())
			assert.Equal(t, "fine", next.Text)
		})
	}
}

func TestDispatchTimeout(t *testing.T) {
	cfg := config.Defaults()
	cfg.Plugins = map[string]config.PluginConf{"SLOW": {Timeout: 50 * time.Millisecond}}

	slow := plugin.HandlerFunc(func(ctx context.Context, req *protocol.Request) ([]byte, error) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		return []byte(`{"response":"late"}`), nil
	})
	r := newRouter(t, cfg, desc("SLOW", 0, slow, "get_time"))

	start := time.Now()
	res := r.Dispatch(context.Background(), getTime, "What time is it?")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, KindPluginExecutionFailure, res.Kind)
	assert.Contains(t, res.Detail, "timed out")
}

func TestDispatchCascade(t *testing.T) {
	cfg := config.Defaults()
	cfg.Dispatch.Cascade = true

	r := newRouter(t, cfg,
		desc("BROKEN", 0, raw(`garbage`), "get_time"),
		desc("ALSO_BROKEN", 1, raw(`{"error":"nope"}`), "get_time"),
		desc("BACKUP", 2, reply("14:05"), "get_time"),
	)
	res := r.Dispatch(context.Background(), getTime, "What time is it?")
	assert.True(t, res.OK())
	assert.Equal(t, "BACKUP", res.Plugin)

	r = newRouter(t, cfg,
		desc("BROKEN", 0, raw(`garbage`), "get_time"),
		desc("ALSO_BROKEN", 1, raw(`{"error":"nope"}`), "get_time"),
	)
	res = r.Dispatch(context.Background(), getTime, "What time is it?")
	assert.Equal(t, KindPluginExecutionFailure, res.Kind)
	assert.Equal(t, "ALSO_BROKEN", res.Plugin, "last failure is reported")
}

func TestDispatchCascadeRunsRepeatedIntentPluginOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := config.Defaults()
	cfg.Dispatch.Cascade = true

	broken := mocks.NewMockHandler(ctrl)
	broken.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(nil, errors.New("down")).Times(1)

	r := newRouter(t, cfg,
		desc("A", 0, broken, "get_time", "get_time"),
		desc("B", 1, reply("14:05"), "get_time"),
	)
	res := r.Dispatch(context.Background(), getTime, "What time is it?")
	assert.True(t, res.OK())
	assert.Equal(t, "B", res.Plugin)
}

func TestDispatchCancelledContextStopsCascade(t *testing.T) {
	cfg := config.Defaults()
	cfg.Dispatch.Cascade = true

	ctx, cancel := context.WithCancel(context.Background())
	first := plugin.HandlerFunc(func(c context.Context, req *protocol.Request) ([]byte, error) {
		cancel()
		return nil, errors.New("gone")
	})
	calledSecond := false
	second := plugin.HandlerFunc(func(c context.Context, req *protocol.Request) ([]byte, error) {
		calledSecond = true
		return []byte(`{"response":"x"}`), nil
	})

	r := newRouter(t, cfg, desc("A", 0, first, "get_time"), desc("B", 1, second, "get_time"))
	res := r.Dispatch(ctx, getTime, "")
	assert.False(t, res.OK())
	assert.False(t, calledSecond)
}

func TestDispatchSubprocessPlugin(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "run.sh")
	body := "#!/bin/sh\nread req\ncase \"$req\" in *get_time*) echo '{\"response\":\"14:05\"}';; *) exit 1;; esac\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	exe := plugin.NewExecHandler(script, dir)
	exe.Logger = log.Discard()
	r := newRouter(t, nil, desc("SHELL", 0, exe, "get_time", "get_date"))

	res := r.Dispatch(context.Background(), getTime, "What time is it?")
	require.True(t, res.OK(), res.String())
	assert.Equal(t, "14:05", strings.TrimSpace(res.Text))

	res = r.Dispatch(context.Background(), nlu.Classification{Intent: "get_date"}, "date?")
	assert.Equal(t, KindPluginExecutionFailure, res.Kind)
	assert.Contains(t, res.Detail, "exit status 1")
}
