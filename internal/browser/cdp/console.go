package cdp

import (
	"context"
	"strings"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const consoleBuffer = 256

type consoleEntry struct {
	level zapcore.Level
	text  string
}

// ConsoleForwarder relays the tab's console output into the logger.
// Listen captures events without blocking; Pump does the logging.
type ConsoleForwarder struct {
	logger  *zap.Logger
	entries chan consoleEntry
}

func NewConsoleForwarder(logger *zap.Logger) *ConsoleForwarder {
	return &ConsoleForwarder{
		logger:  logger.Named("console"),
		entries: make(chan consoleEntry, consoleBuffer),
	}
}

// Listen subscribes to console API calls of the tab in tabCtx.
func (f *ConsoleForwarder) Listen(tabCtx context.Context) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if call, ok := ev.(*runtime.EventConsoleAPICalled); ok {
			f.push(consoleEntry{level: consoleLevel(call.Type), text: formatConsoleArgs(call.Args)})
		}
	})
}

func (f *ConsoleForwarder) push(e consoleEntry) {
	select {
	case f.entries <- e:
	default:
		// Console floods are dropped rather than stalling the event goroutine.
	}
}

// Pump logs captured entries until ctx ends.
func (f *ConsoleForwarder) Pump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-f.entries:
			if ce := f.logger.Check(e.level, e.text); ce != nil {
				ce.Write()
			}
		}
	}
}

func consoleLevel(t runtime.APIType) zapcore.Level {
	switch t {
	case runtime.APITypeError, runtime.APITypeAssert:
		return zapcore.WarnLevel
	case runtime.APITypeWarning:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// formatConsoleArgs joins console arguments the way devtools prints them:
// strings unquoted, other primitives as JSON, objects by description.
func formatConsoleArgs(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		switch {
		case a.Type == runtime.TypeString && len(a.Value) > 0:
			var s string
			if err := json.Unmarshal(a.Value, &s); err == nil {
				parts = append(parts, s)
				continue
			}
			parts = append(parts, string(a.Value))
		case len(a.Value) > 0:
			parts = append(parts, string(a.Value))
		case a.UnserializableValue != "":
			parts = append(parts, string(a.UnserializableValue))
		case a.Description != "":
			parts = append(parts, a.Description)
		default:
			parts = append(parts, string(a.Type))
		}
	}
	return strings.Join(parts, " ")
}
