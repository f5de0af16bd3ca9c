package engine

import (
	"context"
	"fmt"

	"github.com/alejandrobarreracorrea/cloudscan/pkg/model"
	"github.com/rs/zerolog"
)

// Planner enumerates the (namespace, region) tasks for a run. Namespaces pass
// through the allow/deny filters first; global namespaces collapse to a single
// task pinned to the reference region.
type Planner struct {
	loader          model.Loader
	referenceRegion string
	allowlist       map[string]struct{}
	denylist        map[string]struct{}
	log             zerolog.Logger
}

// NewPlanner creates a task planner. An empty allowlist admits every
// namespace not present in the denylist.
func NewPlanner(loader model.Loader, referenceRegion string, allowlist, denylist []string, log zerolog.Logger) *Planner {
	p := &Planner{
		loader:          loader,
		referenceRegion: referenceRegion,
		denylist:        make(map[string]struct{}, len(denylist)),
		log:             log,
	}
	if len(allowlist) > 0 {
		p.allowlist = make(map[string]struct{}, len(allowlist))
		for _, ns := range allowlist {
			p.allowlist[ns] = struct{}{}
		}
	}
	for _, ns := range denylist {
		p.denylist[ns] = struct{}{}
	}
	return p
}

// PlanTasks builds the task list for the requested regions.
func (p *Planner) PlanTasks(ctx context.Context, regions []string) ([]Task, error) {
	if len(regions) == 0 {
		return nil, fmt.Errorf("no regions requested")
	}

	namespaces, err := p.loader.Namespaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing namespaces: %w", err)
	}

	tasks := make([]Task, 0, len(namespaces)*len(regions))
	for _, ns := range namespaces {
		if !p.admit(ns) {
			continue
		}

		svc, err := p.loader.Load(ctx, ns)
		if err != nil {
			// The catalog builder will retry the load per task; plan the
			// namespace as regional so nothing is silently dropped here.
			p.log.Debug().Str("namespace", ns).Err(err).Msg("model load failed at plan time")
			svc = &model.Service{Name: ns}
		}

		if svc.Global {
			tasks = append(tasks, Task{Namespace: ns, Region: p.referenceRegion, Global: true})
			continue
		}
		for _, region := range regions {
			tasks = append(tasks, Task{Namespace: ns, Region: region})
		}
	}

	return tasks, nil
}

func (p *Planner) admit(namespace string) bool {
	if _, denied := p.denylist[namespace]; denied {
		return false
	}
	if p.allowlist != nil {
		_, allowed := p.allowlist[namespace]
		return allowed
	}
	return true
}
