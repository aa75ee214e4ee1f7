// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package config

import "github.com/urfave/cli"

// ConfigFileFlag names the TOML file loaded before flag overrides are
// applied, mirroring nodecmd.ConfigFileFlag.
var ConfigFileFlag = cli.StringFlag{
	Name:  "config",
	Usage: "TOML configuration file",
}

// Flags is the coordinator's flag table (cmd/kcn/main.go's nodeFlags
// pattern, trimmed to this service's configuration surface).
var Flags = []cli.Flag{
	ConfigFileFlag,
	cli.StringFlag{Name: "http.listen", Usage: "HTTP listen address"},
	cli.StringFlag{Name: "store.backend", Usage: "Store backend: kv or sql"},
	cli.StringFlag{Name: "store.kvdir", Usage: "KVStore data directory"},
	cli.StringFlag{Name: "store.sqlhost", Usage: "MySQL host"},
	cli.IntFlag{Name: "store.sqlport", Usage: "MySQL port"},
	cli.StringFlag{Name: "store.sqluser", Usage: "MySQL user"},
	cli.StringFlag{Name: "store.sqlpassword", Usage: "MySQL password"},
	cli.StringFlag{Name: "store.sqldatabase", Usage: "MySQL database name"},
	cli.StringFlag{Name: "ledgersink.backend", Usage: "LedgerSink backend: noop or kafka"},
	cli.StringFlag{Name: "ledgersink.kafkatopic", Usage: "Kafka topic for settlement events"},
	cli.StringFlag{Name: "signingkeypath", Usage: "path to the active Ed25519 signing key"},
	cli.StringFlag{Name: "signingkeyid", Usage: "key id of the active signing key"},
	cli.BoolFlag{Name: "policy.failonpriceclamp", Usage: "fail an attempt instead of clamping to max_price"},
}

// ApplyFlags overrides cfg's fields with any flag the user set explicitly
// on ctx, following cmd/utils.SetNodeConfig's layering: file, then flags.
func ApplyFlags(ctx *cli.Context, cfg *Config) {
	if ctx.GlobalIsSet("http.listen") {
		cfg.HTTP.ListenAddr = ctx.GlobalString("http.listen")
	}
	if ctx.GlobalIsSet("store.backend") {
		cfg.Store.Backend = ctx.GlobalString("store.backend")
	}
	if ctx.GlobalIsSet("store.kvdir") {
		cfg.Store.KVDir = ctx.GlobalString("store.kvdir")
	}
	if ctx.GlobalIsSet("store.sqlhost") {
		cfg.Store.SQLHost = ctx.GlobalString("store.sqlhost")
	}
	if ctx.GlobalIsSet("store.sqlport") {
		cfg.Store.SQLPort = ctx.GlobalInt("store.sqlport")
	}
	if ctx.GlobalIsSet("store.sqluser") {
		cfg.Store.SQLUser = ctx.GlobalString("store.sqluser")
	}
	if ctx.GlobalIsSet("store.sqlpassword") {
		cfg.Store.SQLPassword = ctx.GlobalString("store.sqlpassword")
	}
	if ctx.GlobalIsSet("store.sqldatabase") {
		cfg.Store.SQLDatabase = ctx.GlobalString("store.sqldatabase")
	}
	if ctx.GlobalIsSet("ledgersink.backend") {
		cfg.LedgerSink.Backend = ctx.GlobalString("ledgersink.backend")
	}
	if ctx.GlobalIsSet("ledgersink.kafkatopic") {
		cfg.LedgerSink.KafkaTopic = ctx.GlobalString("ledgersink.kafkatopic")
	}
	if ctx.GlobalIsSet("signingkeypath") {
		cfg.SigningKeyPath = ctx.GlobalString("signingkeypath")
	}
	if ctx.GlobalIsSet("signingkeyid") {
		cfg.SigningKeyID = ctx.GlobalString("signingkeyid")
	}
	if ctx.GlobalIsSet("policy.failonpriceclamp") {
		cfg.Policy.FailOnPriceClamp = ctx.GlobalBool("policy.failonpriceclamp")
	}
}
