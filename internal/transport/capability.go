package transport

import (
	"context"

	"go.uber.org/zap"
)

// detectCapabilities runs the configured probe command once, immediately
// after authentication, and latches supportsCommands. A host policy that
// pre-disabled commands skips the probe entirely; the flag never changes
// again for the lifetime of the Transport.
func (t *Transport) detectCapabilities() {
	if t.commandsDisabled.Load() {
		t.logger.Debug("command-exec pre-disabled by host policy")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.params.Timeout)
	defer cancel()

	_, err := t.ExecuteCommand(ctx, t.params.CommandProbe)
	if err != nil {
		t.logger.Info("command-exec probe failed, disabling fast paths", zap.Error(err))
		return
	}
	t.supportsCommands.Store(true)
}
