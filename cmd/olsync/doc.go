// Command olsync mirrors OpenLibrary bulk dump files into parquet datasets.
//
// The run command executes the full sync pass: probe each configured dump,
// download what changed, convert to snappy-compressed parquet segments, and
// publish them to the configured dataset store. fetch stops after the download
// stage, status renders recent run history, and the config subcommands manage
// the TOML configuration file.
package main
