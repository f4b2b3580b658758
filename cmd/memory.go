package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/shirou/gopsutil/v3/process"
)

// memoryReporter logs the memory usage of the process after each refresh.
type memoryReporter struct {
	logger    *slog.Logger
	refresher service.Refresher
}

// type check
var _ service.Refresher = (*memoryReporter)(nil)

// Refresh implements the [service.Refresher] interface for *memoryReporter.
func (m *memoryReporter) Refresh(ctx context.Context) (err error) {
	err = m.refresher.Refresh(ctx)

	// #nosec G115 -- PIDs fit into int32.
	p, procErr := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if procErr != nil {
		m.logger.DebugContext(ctx, "getting process", slogutil.KeyError, procErr)

		return err
	}

	mi, procErr := p.MemoryInfoWithContext(ctx)
	if procErr != nil {
		m.logger.DebugContext(ctx, "getting memory info", slogutil.KeyError, procErr)

		return err
	}

	m.logger.InfoContext(ctx, "memory usage", "rss_kb", mi.RSS/1024, "vms_kb", mi.VMS/1024)

	return err
}
