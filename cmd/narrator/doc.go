// Command narrator is the command-line front end.
//
// Commands talk to a running narratord over its HTTP API. When none answers
// at paths.api_bind (or --local is set), the CLI starts the same daemon
// in-process on a loopback port for the duration of the command, so every
// command behaves the same either way. A run started in-process is
// cancelled on Ctrl-C; one started on narratord keeps going and can be
// followed again with `narrator status --follow`.
package main
