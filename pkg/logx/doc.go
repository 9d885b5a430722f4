// Package logx is cronloop's structured logger, a thin layer over zerolog.
//
// Console output is human readable with a short file:line caller. The file
// sink writes JSON lines. Level and sinks can be swapped at runtime by
// Service.Apply when the config is reloaded.
package logx
