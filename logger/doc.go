// Package logger is flowkit's zerolog front end.
//
// A process builds one Logger from the logging section and narrows it as work
// is scoped: WithComponent for infrastructure, WithRun for a run, WithNode
// for a node inside it.
//
//	logging:
//	  level: info      # trace, debug, info, warn, error, disabled
//	  format: json     # json, console or pretty
//	  output: stderr   # or stdout
//
//	log := logger.New(&cfg.Logging, "flowkit").WithRun(runID, wf.ID)
//	log.WithNode("load", "sink").Info("batch written", logger.Fields("count", 20))
//
// Call sites log identifiers, counts and cursors. Item payloads and
// credential values never reach a logger.
package logger
