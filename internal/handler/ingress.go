package handler

import (
	"context"
	"fmt"
	"strings"

	networkingv1 "k8s.io/api/networking/v1"

	theiaclient "theiacloud/internal/client"
	"theiacloud/internal/config"
	"theiacloud/pkg/apis/theiacloud/v1beta"
	"theiacloud/pkg/logging"
)

const (
	// ingressRewritePath is appended to every rule path; the ingress
	// controller rewrites the captured remainder.
	ingressRewritePath = "(/|$)(.*)"
	hostProtocol       = "https://"
)

var ingressPathType = networkingv1.PathTypeImplementationSpecific

// PathProvider computes the ingress paths under which instances are served.
type PathProvider struct {
	usePaths      bool
	instancesPath string
}

// NewPathProvider creates a path provider for the configuration.
func NewPathProvider(cfg config.OperatorConfig) PathProvider {
	return PathProvider{usePaths: cfg.UsePaths, instancesPath: strings.TrimSpace(cfg.InstancesPath)}
}

func (p PathProvider) basePath() string {
	if p.usePaths && p.instancesPath != "" {
		return "/" + p.instancesPath + "/"
	}
	if p.usePaths {
		logging.Warn("Handler", "Paths are used instead of subdomains but no instances path is configured")
	}
	return "/"
}

// ForInstance is the path of a pre-started instance.
func (p PathProvider) ForInstance(appDefinition *v1beta.AppDefinition, instance int) string {
	return fmt.Sprintf("%s%s-%d", p.basePath(), appDefinition.Spec.Name, instance)
}

// ForSession is the path of a lazily started session.
func (p PathProvider) ForSession(session *v1beta.Session) string {
	return p.basePath() + string(session.UID)
}

// ingressHosts lists the instances host followed by every prefixed host of
// the app definition.
func ingressHosts(instancesHost string, appDefinition *v1beta.AppDefinition) []string {
	hosts := []string{instancesHost}
	for _, prefix := range appDefinition.Spec.IngressHostnamePrefixes {
		hosts = append(hosts, prefix+instancesHost)
	}
	return hosts
}

// ensureIngressOwnership makes sure the ingress named by the app definition
// carries an owner reference to it. It reports whether an ingress is available.
func ensureIngressOwnership(ctx context.Context, c *theiaclient.Client, appDefinition *v1beta.AppDefinition, correlationID string) (bool, error) {
	owned, err := c.FindIngressOwnedBy(ctx, appDefinition.Name, appDefinition.UID)
	if err != nil {
		return false, err
	}
	if owned != nil {
		logging.Debug("Handler", "[%s] Ingress %s available already", correlationID, owned.Name)
		return true, nil
	}

	ref, err := c.OwnerReference(appDefinition)
	if err != nil {
		return false, err
	}
	_, err = c.EditIngress(ctx, appDefinition.Spec.IngressName, func(ingress *networkingv1.Ingress) error {
		theiaclient.AddOwnerReference(ingress, ref)
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	logging.Info("Handler", "[%s] Added owner reference of app definition %s to ingress %s", correlationID, appDefinition.Name, appDefinition.Spec.IngressName)
	return true, nil
}

// newIngressRule routes host+path to the service port.
func newIngressRule(host, path, serviceName string, port int) networkingv1.IngressRule {
	return networkingv1.IngressRule{
		Host: host,
		IngressRuleValue: networkingv1.IngressRuleValue{
			HTTP: &networkingv1.HTTPIngressRuleValue{
				Paths: []networkingv1.HTTPIngressPath{{
					Path:     path + ingressRewritePath,
					PathType: &ingressPathType,
					Backend: networkingv1.IngressBackend{
						Service: &networkingv1.IngressServiceBackend{
							Name: serviceName,
							Port: networkingv1.ServiceBackendPort{Number: int32(port)},
						},
					},
				}},
			},
		},
	}
}

// addIngressRules adds one rule per host and returns the session URL.
func addIngressRules(ctx context.Context, c *theiaclient.Client, ingressName string, hosts []string, path, serviceName string, port int) (string, error) {
	_, err := c.EditIngress(ctx, ingressName, func(ingress *networkingv1.Ingress) error {
		for _, host := range hosts {
			if hasIngressRule(ingress, host, path) {
				continue
			}
			ingress.Spec.Rules = append(ingress.Spec.Rules, newIngressRule(host, path, serviceName, port))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return hosts[0] + path + "/", nil
}

func hasIngressRule(ingress *networkingv1.Ingress, host, path string) bool {
	for _, rule := range ingress.Spec.Rules {
		if rule.Host == host && ruleHasPath(rule, path+ingressRewritePath) {
			return true
		}
	}
	return false
}

func ruleHasPath(rule networkingv1.IngressRule, ingressPath string) bool {
	if rule.HTTP == nil {
		return false
	}
	for _, p := range rule.HTTP.Paths {
		if p.Path == ingressPath {
			return true
		}
	}
	return false
}

// removeIngressRules drops the rules for path on the given hosts. A nil
// hosts slice matches every host. It returns the number of removed rules.
func removeIngressRules(ctx context.Context, c *theiaclient.Client, ingressName, path string, hosts []string, correlationID string) (int, error) {
	ingressPath := path + ingressRewritePath
	removed := 0
	_, err := c.EditIngress(ctx, ingressName, func(ingress *networkingv1.Ingress) error {
		removed = 0
		kept := ingress.Spec.Rules[:0:0]
		for _, rule := range ingress.Spec.Rules {
			if ruleHasPath(rule, ingressPath) && (hosts == nil || contains(hosts, rule.Host)) {
				removed++
				continue
			}
			kept = append(kept, rule)
		}
		ingress.Spec.Rules = kept
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		logging.Warn("Handler", "[%s] No ingress rules found to remove for path %s", correlationID, path)
	} else {
		logging.Info("Handler", "[%s] Removed %d ingress rule(s) for path %s", correlationID, removed, path)
	}
	return removed, nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
