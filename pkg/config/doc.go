// Package config loads the gmatflow workspace configuration.
//
// # Overview
//
// A workspace is described by gmatflow.yaml, read with viper and validated
// with struct tags. Every key has a default set in code, so an empty or
// missing file yields a working local setup rooted at ./data:
//
//	data/input/datos_guardados.txt   scenario
//	data/gmat/demo.script            generated script
//	data/output/                     engine report
//	data/plots/                      charts
//	data/gmatflow.db                 run history
//
// # Environment Overrides
//
// Keys map to environment variables by upper-casing them, replacing dots
// with underscores and adding the GMATFLOW_ prefix:
//
//	GMATFLOW_GMAT_CONSOLE=/opt/gmat/bin/GmatConsole
//	GMATFLOW_GMAT_REMOTE_ENABLED=true
//	GMATFLOW_POLICY_DIRS=policies,/etc/gmatflow/policies
//
// # Usage Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.EnsureDirs(); err != nil {
//	    log.Fatal(err)
//	}
//	store, err := stores.NewSQLiteStore(cfg.StoreSettings())
//
// Durations are written as Go duration strings ("10m", "30s").
package config
