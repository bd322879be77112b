package flow

import (
	"github.com/devicelab-dev/bizflow-runner/pkg/config"
	"github.com/devicelab-dev/bizflow-runner/pkg/jsengine"
	"github.com/devicelab-dev/bizflow-runner/pkg/logger"
)

// Expand evaluates ${...} expressions in every step command against the
// resolved settings. Visible variables: env, device, ci and step.
func Expand(steps []Step, settings config.Settings) []Step {
	engine := jsengine.New()

	env := make(map[string]interface{}, len(settings.Env))
	for k, v := range settings.Env {
		env[k] = v
	}
	engine.BindAll(map[string]interface{}{
		"env": env,
		"ci":  settings.CI,
		"device": map[string]interface{}{
			"mode": string(settings.Device.Mode),
			"udid": settings.Device.UDID,
			"name": settings.Device.Name,
		},
	})

	out := make([]Step, len(steps))
	for i, s := range steps {
		engine.Bind("step", map[string]interface{}{
			"id":       s.ID,
			"name":     s.Name,
			"platform": string(s.Platform),
		})

		x := engine.Expand(s.Command)
		for _, expr := range x.Unresolved {
			logger.Debug("[%s] left ${%s} for the shell", s.ID, expr)
		}
		s.Command = x.Text
		out[i] = s
	}
	return out
}
