package state

import "path/filepath"

type Paths struct {
	Data   string
	Tables string // JSON table files
	Store  string // pebble backend
	State  string
	Audit  string
	Export string // staged export/digest files
	Tmp    string
	Crash  string
	Offset string // long-poll offset file
}

func PathsFor(dataPath string) Paths {
	statePath := filepath.Join(dataPath, "state")
	return Paths{
		// base
		Data: dataPath,

		// mains
		Tables: filepath.Join(dataPath, "tables"),
		Store:  filepath.Join(dataPath, "store"),

		// state
		State:  statePath,
		Audit:  filepath.Join(statePath, "audit"),
		Export: filepath.Join(statePath, "export"),
		Tmp:    filepath.Join(statePath, "tmp"),
		Crash:  filepath.Join(statePath, "crash"),
		Offset: filepath.Join(statePath, "telegram.offset"),
	}
}

func TablesPath(dataPath string) string { return PathsFor(dataPath).Tables }
func StorePath(dataPath string) string  { return PathsFor(dataPath).Store }
func AuditPath(dataPath string) string  { return PathsFor(dataPath).Audit }
func ExportPath(dataPath string) string { return PathsFor(dataPath).Export }
