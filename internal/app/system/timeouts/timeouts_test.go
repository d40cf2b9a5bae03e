package timeouts_test

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/spendhub/internal/app/system/timeouts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaults(t *testing.T) {
	timeouts.Reset()
	got := timeouts.Current()
	want := timeouts.Config{
		Ping:     timeouts.DefaultPing,
		Short:    timeouts.DefaultShort,
		Medium:   timeouts.DefaultMedium,
		Long:     timeouts.DefaultLong,
		Delivery: timeouts.DefaultDelivery,
	}
	if got != want {
		t.Errorf("Current() = %+v, want %+v", got, want)
	}
}

func TestConfigure_IgnoresZero(t *testing.T) {
	timeouts.Reset()
	defer timeouts.Reset()

	timeouts.Configure(timeouts.Config{Short: 7 * time.Second, Delivery: -1})

	if timeouts.Short() != 7*time.Second {
		t.Errorf("Short() = %v, want 7s", timeouts.Short())
	}
	if timeouts.Medium() != timeouts.DefaultMedium {
		t.Errorf("Medium() = %v, want default", timeouts.Medium())
	}
	if timeouts.Delivery() != timeouts.DefaultDelivery {
		t.Errorf("Delivery() = %v, want default", timeouts.Delivery())
	}
}

func TestWithTimeout_LogsOnDeadline(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ctx, cancel := timeouts.WithTimeout(context.Background(), time.Millisecond, zap.New(core), "slow op")
	<-ctx.Done()
	cancel()

	entries := logs.FilterMessage("operation timed out").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 timeout warning, got %d", len(entries))
	}
	if entries[0].ContextMap()["operation"] != "slow op" {
		t.Errorf("operation field = %v", entries[0].ContextMap()["operation"])
	}
}

func TestWithTimeout_SilentOnCancel(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	_, cancel := timeouts.WithTimeout(context.Background(), time.Hour, zap.New(core), "fast op")
	cancel()
	if logs.Len() != 0 {
		t.Errorf("expected no warnings, got %d", logs.Len())
	}
}
