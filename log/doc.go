// Package log is the leveled logger of the canvas backend, backed by
// kataras/golog.
//
// Components log through the package functions, or through a Named child
// when the lines should carry the component:
//
//	log.SetLogLevel(log.ParseLevel(cfg.Log.Level))
//	log.Named("campaign").Error("replication of %s failed: %v", id, err)
//
// Warn is used for tolerated failures such as an unreachable resource, Error
// for failures that drop work, like a campaign that could not be replicated.
package log
