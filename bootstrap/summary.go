package bootstrap

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kbukum/flowkit/component"
	"github.com/kbukum/flowkit/version"
)

// DisplaySummary writes the startup summary: backends, registered providers
// and processors, and live component health.
func (a *App) DisplaySummary(startup time.Duration) {
	if a.summaryOut == nil {
		return
	}
	writeSummary(a.summaryOut, a, startup)
}

func writeSummary(w io.Writer, a *App, startup time.Duration) {
	fmt.Fprintf(w, "\n🚀 %s %s started in %.2fs (store: %s)\n\n",
		a.Cfg.Name, version.Get().Version, startup.Seconds(), a.Cfg.Store.Driver)

	if descs := a.Components.Describe(); len(descs) > 0 {
		fmt.Fprintf(w, "📊 Infrastructure\n")
		for i, d := range descs {
			fmt.Fprintf(w, "   %s %s [%s] %s\n", treePrefix(i, len(descs)), d.Name, d.Type, d.Details)
		}
		fmt.Fprintf(w, "\n")
	}

	providers := a.Providers.List()
	fmt.Fprintf(w, "🔌 Providers (%d)\n   └── %s\n\n", len(providers), strings.Join(providers, ", "))

	transforms, predicates := a.Processors.Transforms(), a.Processors.Predicates()
	fmt.Fprintf(w, "⚙️  Processors\n")
	fmt.Fprintf(w, "   ├── transforms: %s\n", strings.Join(transforms, ", "))
	fmt.Fprintf(w, "   └── predicates: %s\n", strings.Join(predicates, ", "))

	results := a.Components.HealthAll(context.Background())
	if len(results) > 0 {
		fmt.Fprintf(w, "\n🏥 Health Check\n")
		for i, h := range results {
			msg := ""
			if h.Message != "" {
				msg = " (" + h.Message + ")"
			}
			fmt.Fprintf(w, "   %s %s %s: %s%s\n", treePrefix(i, len(results)), healthStatusIcon(h.Status), h.Name, h.Status, msg)
		}
	}
	fmt.Fprintf(w, "\n")
}

func treePrefix(i, n int) string {
	if i == n-1 {
		return "└──"
	}
	return "├──"
}

func healthStatusIcon(status component.HealthStatus) string {
	switch status {
	case component.StatusHealthy:
		return "✅"
	case component.StatusDegraded:
		return "⚠️"
	case component.StatusUnhealthy:
		return "❌"
	default:
		return "❓"
	}
}
