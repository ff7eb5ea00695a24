package remediation

import (
	"context"
	"fmt"
	"strings"

	"activator/internal/models"
)

// standaloneTarget is a down service outside any group.
type standaloneTarget struct {
	key         models.TargetKey
	application string
	server      models.Server
	service     models.Service
}

// restartStandalone runs the startup command, waits for the service to settle
// and re-checks it. It never writes the status cache; only a sweep does.
func (o *Orchestrator) restartStandalone(ctx context.Context, t standaloneTarget) (out models.Outcome) {
	out.Key = string(t.key)
	defer func() {
		if r := recover(); r != nil {
			out.Kind = models.OutcomeError
			out.Message = fmt.Sprint(r)
		}
	}()

	cmd := strings.TrimSpace(t.service.StartupCmd)
	if cmd == "" {
		out.Kind = models.OutcomeError
		out.Message = "No startup command configured"
		return out
	}
	cmd = models.Elevate(cmd, t.server, o.elevation)

	o.log.Infow("Attempting restart", "target", t.key, "server", t.server.Name)
	res, err := o.exec.Execute(ctx, t.application, t.server.Address, cmd, t.server.OS)
	if err != nil {
		out.Kind = models.OutcomeError
		out.Message = err.Error()
		return out
	}
	if !res.Succeeded {
		out.Kind = models.OutcomeFailed
		out.Message = res.Text()
		return out
	}

	if err := o.pause(ctx, o.delays.RestartVerify); err != nil {
		out.Kind = models.OutcomePartial
		out.Message = fmt.Sprintf("Service restarted but verification skipped: %v", err)
		return out
	}

	statusCmd, ok := t.service.StatusProbe()
	if !ok {
		out.Kind = models.OutcomeSuccess
		out.Message = "Service restart command executed"
		return out
	}
	statusCmd = models.Elevate(statusCmd, t.server, o.elevation)

	check, err := o.exec.Execute(ctx, t.application, t.server.Address, statusCmd, t.server.OS)
	if err == nil && o.classifier.Classify(t.service.Name, check.Text()) == models.StatusUp {
		out.Kind = models.OutcomeSuccess
		out.Message = "Service restarted and is now running"
		return out
	}
	out.Kind = models.OutcomePartial
	out.Message = "Service restarted but status unclear"
	return out
}
