package checks

import (
	"context"
	"fmt"

	domain "github.com/bryanwahyu/checkflow/internal/domain/checks"
)

// CommandScan asks the device to capture the next check.
const CommandScan = "SCAN"

// RequestScan sends SCAN to the device. A closed or missing channel drops
// the command with a warning and records it as the last error; it is never
// returned to the caller as a failure.
func (s *Service) RequestScan(ctx context.Context) bool {
	sent := s.scanner != nil && s.scanner.Send(ctx, CommandScan)
	s.metrics.IncCommand(sent)
	if !sent {
		s.log.WithField("command", CommandScan).Warn("scanner command channel not ready")
		s.setLastError(ctx, fmt.Errorf("%s: %w", CommandScan, domain.ErrCommandDropped))
	}
	return sent
}
