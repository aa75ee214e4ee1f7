// Copyright 2026 The aitbc-coordinator Authors
// This file is part of the aitbc-coordinator library.

package config

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/naoina/toml"
)

// tomlSettings mirrors cmd/ranger/config.go: struct field names are used
// verbatim as TOML keys, and an unrecognized key in the file is a load
// error rather than a silent no-op.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// Load reads a TOML file into cfg, starting from DefaultConfig so any
// field the file omits keeps its documented default.
func Load(path string) (Config, error) {
	cfg := DefaultConfig
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = fmt.Errorf("%s, %w", path, err)
	}
	return cfg, err
}

// Dump renders cfg back to TOML text, used by `coordinator dumpconfig`
// to show the effective configuration (file plus flag overrides).
func Dump(cfg Config) (string, error) {
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
