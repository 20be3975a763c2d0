package template

// Origin records where a template's source came from, for error
// messages and tooling.
type Origin struct {
	// Name is the loader-specific display name, usually a file path.
	Name string
}

// Loader supplies template source by name. Implementations live in the
// loaders subpackage; the engine itself never touches the filesystem.
type Loader interface {
	Load(name string) (src string, origin Origin, err error)
}
