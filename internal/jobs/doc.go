// Package jobs holds the built-in job bodies a config file can select by
// kind, and builds scheduler jobs from config entries.
//
// Every body keeps its state in the job's context data, so the state lives
// exactly as long as the job does.
package jobs
