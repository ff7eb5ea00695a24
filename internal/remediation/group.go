package remediation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"activator/internal/executor"
	"activator/internal/models"
)

// PrimarySuffix marks the group member that must stop last and start first.
const PrimarySuffix = "-M"

// IsPrimary reports whether serviceName names a group primary.
func IsPrimary(serviceName string) bool {
	return strings.HasSuffix(serviceName, PrimarySuffix)
}

// StartOrder sorts members primary first, then secondaries by service name.
// The stop order is its reverse.
func StartOrder(members []models.GroupedService) []models.GroupedService {
	ordered := make([]models.GroupedService, len(members))
	copy(ordered, members)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := IsPrimary(ordered[i].Service.Name), IsPrimary(ordered[j].Service.Name)
		if pi != pj {
			return pi
		}
		return ordered[i].Service.Name < ordered[j].Service.Name
	})
	return ordered
}

// StopOrder is StartOrder reversed: secondaries first, primary last.
func StopOrder(members []models.GroupedService) []models.GroupedService {
	ordered := StartOrder(members)
	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}
	return ordered
}

// GroupResult is the record of one coordinated group restart.
type GroupResult struct {
	Group   string           `json:"group"`
	Order   []string         `json:"order"`
	Steps   []models.Outcome `json:"steps"`
	Outcome models.Outcome   `json:"outcome"`
}

// GroupRestarter stops and restarts the members of one group strictly in
// sequence.
type GroupRestarter struct {
	exec      executor.Executor
	elevation string
	stopGap   time.Duration
	startGap  time.Duration
	pause     func(ctx context.Context, d time.Duration) error
	log       *zap.SugaredLogger
}

// Restart runs the stop phase in reverse order, then the start phase in
// forward order. A failing member does not stop the protocol; the aggregate
// outcome is SUCCESS only if every step succeeded.
func (g *GroupRestarter) Restart(ctx context.Context, group string, members []models.GroupedService) GroupResult {
	order := StartOrder(members)
	result := GroupResult{Group: group}
	for _, m := range order {
		result.Order = append(result.Order, m.Service.Name)
	}
	log := g.log.With("group", group)
	log.Infow("Starting coordinated restart", "members", len(order), "order", strings.Join(result.Order, " -> "))

	for i := len(order) - 1; i >= 0; i-- {
		step := g.step(ctx, order[i], "stop")
		result.Steps = append(result.Steps, step)
		log.Infow("Stop step finished", "service", order[i].Service.Name, "result", step.String())
		if err := g.pause(ctx, g.stopGap); err != nil {
			return g.interrupted(result, err)
		}
	}

	for i, m := range order {
		step := g.step(ctx, m, "start")
		result.Steps = append(result.Steps, step)
		log.Infow("Start step finished", "service", m.Service.Name, "result", step.String())
		if i == len(order)-1 {
			break
		}
		if err := g.pause(ctx, g.startGap); err != nil {
			return g.interrupted(result, err)
		}
	}

	var failed []string
	for _, s := range result.Steps {
		if s.Kind != models.OutcomeSuccess {
			failed = append(failed, s.String())
		}
	}
	key := "Group " + group
	if len(failed) == 0 {
		result.Outcome = models.Outcome{Key: key, Kind: models.OutcomeSuccess,
			Message: fmt.Sprintf("All %d services in group restarted (%s)", len(order), strings.Join(result.Order, " -> "))}
	} else {
		result.Outcome = models.Outcome{Key: key, Kind: models.OutcomeError,
			Message: fmt.Sprintf("%d of %d steps failed: %s", len(failed), len(result.Steps), strings.Join(failed, ", "))}
	}
	log.Infow("Coordinated restart completed", "result", result.Outcome.String())
	return result
}

func (g *GroupRestarter) interrupted(result GroupResult, err error) GroupResult {
	result.Outcome = models.Outcome{
		Key:     "Group " + result.Group,
		Kind:    models.OutcomeError,
		Message: fmt.Sprintf("coordinated restart interrupted after %d step(s): %v", len(result.Steps), err),
	}
	g.log.Warnw("Coordinated restart interrupted", "group", result.Group, "error", err)
	return result
}

// step runs the stop or start command of one member.
func (g *GroupRestarter) step(ctx context.Context, m models.GroupedService, action string) (out models.Outcome) {
	out.Key = fmt.Sprintf("%s %s", m.Service.Name, action)
	defer func() {
		if r := recover(); r != nil {
			out.Kind = models.OutcomeError
			out.Message = fmt.Sprint(r)
		}
	}()

	cmd := m.Service.StopCmd
	if action == "start" {
		cmd = m.Service.StartupCmd
	}
	if strings.TrimSpace(cmd) == "" {
		out.Kind = models.OutcomeError
		out.Message = fmt.Sprintf("No %s command configured", action)
		return out
	}
	cmd = models.Elevate(strings.TrimSpace(cmd), m.Server, g.elevation)

	res, err := g.exec.Execute(ctx, m.Application, m.Server.Address, cmd, m.Server.OS)
	switch {
	case err != nil:
		out.Kind = models.OutcomeError
		out.Message = err.Error()
	case !res.Succeeded:
		out.Kind = models.OutcomeFailed
		out.Message = res.Text()
	default:
		out.Kind = models.OutcomeSuccess
		out.Message = fmt.Sprintf("Service %s command executed", action)
	}
	return out
}
