// Package config holds the operator configuration.
//
// Configuration is assembled in three layers: built-in defaults, an optional
// YAML file passed with --config, and command line flags that were set
// explicitly. The result is validated before the operator starts.
//
// A minimal configuration file:
//
//	instancesHost: ws.theia-cloud.example.com
//	eagerStart: false
//	keycloak: true
//	keycloakURL: https://keycloak.example.com/
//	keycloakRealm: TheiaCloud
//	keycloakClientID: theia-cloud
//	cloudProvider: K8S
//	sessionsPerUser: 3
package config
