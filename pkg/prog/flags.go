package prog

import "flag"

// FlagSet wraps a [flag.FlagSet], and provides methods to register flags
// shared by multiple subprograms only when they are requested.
type FlagSet struct {
	*flag.FlagSet
	json *bool
	db   *string
}

// JSON returns a pointer to the value of the shared -json flag, registering it
// if needed.
func (fs *FlagSet) JSON() *bool {
	if fs.json == nil {
		var json bool
		fs.BoolVar(&json, "json", false,
			"Show the output from -compileonly in JSON")
		fs.json = &json
	}
	return fs.json
}

// DB returns a pointer to the value of the shared -db flag, registering it if
// needed.
func (fs *FlagSet) DB() *string {
	if fs.db == nil {
		var db string
		fs.StringVar(&db, "db", "",
			"Path to the lowering cache database")
		fs.db = &db
	}
	return fs.db
}
