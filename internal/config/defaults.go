package config

import (
	"os"
	"strings"
	"time"
)

const (
	DefaultNamespace         = "default"
	DefaultRequestedStorage  = "250Mi"
	DefaultWondershaperImage = "theiacloud/theia-cloud-wondershaper:latest"
	DefaultOAuth2Proxy       = "v7.5.1"
	DefaultMetricsAddress    = ":8081"

	DefaultMonitorInterval   = time.Minute
	DefaultMaxWatchIdleTime  = time.Hour
	DefaultSweepInterval     = time.Minute
	DefaultIdleCheckInterval = time.Minute

	DefaultLeaderLeaseDuration = 10 * time.Second
	DefaultLeaderRenewDeadline = 5 * time.Second
	DefaultLeaderRetryPeriod   = 2 * time.Second

	serviceAccountNamespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"
)

// namespaceFile is a variable so tests can point it elsewhere.
var namespaceFile = serviceAccountNamespaceFile

// GetDefaultConfig returns the operator defaults. The namespace is taken
// from the service account when running in a pod.
func GetDefaultConfig() OperatorConfig {
	return OperatorConfig{
		Namespace:           inClusterNamespace(),
		RequestedStorage:    DefaultRequestedStorage,
		CloudProvider:       CloudProviderK8S,
		WondershaperImage:   DefaultWondershaperImage,
		OAuth2ProxyVersion:  DefaultOAuth2Proxy,
		MonitorInterval:     DefaultMonitorInterval,
		MaxWatchIdleTime:    DefaultMaxWatchIdleTime,
		SweepInterval:       DefaultSweepInterval,
		IdleCheckInterval:   DefaultIdleCheckInterval,
		LeaderElection:      true,
		LeaderLeaseDuration: DefaultLeaderLeaseDuration,
		LeaderRenewDeadline: DefaultLeaderRenewDeadline,
		LeaderRetryPeriod:   DefaultLeaderRetryPeriod,
		MetricsAddress:      DefaultMetricsAddress,
	}
}

func inClusterNamespace() string {
	data, err := os.ReadFile(namespaceFile)
	if err != nil {
		return DefaultNamespace
	}
	if ns := strings.TrimSpace(string(data)); ns != "" {
		return ns
	}
	return DefaultNamespace
}
