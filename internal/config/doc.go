// Package config provides configuration types, layered YAML loading and
// validation for the service gateway.
//
// Configuration lives in a directory holding base.yaml plus optional
// per-environment overrides (development.yaml, production.yaml, ...).
// The environment layer is deep-merged over the base layer, then
// ${VAR} and ${VAR:-default} references are expanded from the process
// environment:
//
//	cfg, err := config.Load("config", "production")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// A minimal document:
//
//	app:
//	  api_prefix: /api/v1
//	services:
//	  orders:
//	    url: http://orders.internal:8080
//	    timeout: 10
//	  billing:
//	    url: https://billing.internal
//	    require_mtls: true
//	mtls:
//	  enabled: true
//	  cert_file: /etc/gw/client.crt
//	  key_file: /etc/gw/client.key
//	  ca_file: /etc/gw/ca.crt
package config
