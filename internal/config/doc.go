// Package config loads dbgcore settings.
//
// Settings come from three places, later ones winning:
//
//  1. Default
//  2. a TOML or YAML file, chosen by extension
//  3. environment variables prefixed with DBGCORE_, for example
//     DBGCORE_LOG_LEVEL=debug or DBGCORE_DEBUGGER_BREAK_ALL_PROCESSES=true
//
// A Watcher reloads the file when it changes and hands the new Config to
// registered handlers.
package config
