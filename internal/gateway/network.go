package gateway

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/tradegate/internal/probe"
	"github.com/seenimoa/tradegate/pkg/models"
)

const networkCacheKey = "network"

// CheckNetworkStatus probes every configured target concurrently. Reports
// are cached for network.cache_ttl. The shared load ignores the caller's
// cancellation; each probe is bounded by network.probe_timeout.
func (s *Service) CheckNetworkStatus(ctx context.Context) models.NetworkReport {
	report, _ := s.network.GetOrLoad(ctx, networkCacheKey, func(ctx context.Context) (models.NetworkReport, error) {
		report := s.prober.Run(context.WithoutCancel(ctx), s.targets())
		s.log.WithFields(logrus.Fields{
			"overall":  report.OverallStatus,
			"services": len(report.Services),
		}).Info("network status checked")
		return report, nil
	})
	return report
}

func (s *Service) targets() []probe.Target {
	if len(s.cfg.Network.Targets) > 0 {
		return probe.TargetsFromConfig(s.cfg.Network.Targets)
	}
	return probe.DefaultTargets(s.cfg)
}
