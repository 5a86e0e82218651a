package media

import "path/filepath"

// Key identifies an entry by what it is rather than where it lives.
// Two entries are the same video iff their keys match.
type Key struct {
	Title      string
	Resolution Resolution
	Container  Container
}

// String returns the canonical basename for the key.
func (k Key) String() string {
	return ComposeFilename(k.Title, k.Resolution, k.Container)
}

// Entry is one materialized video file. The basename of Path always equals
// ComposeFilename(Title, Resolution, Container).
type Entry struct {
	Title      string     `json:"title"`
	Resolution Resolution `json:"resolution"`
	Container  Container  `json:"container"`
	Path       string     `json:"-"`
}

// Key returns the identity of the entry.
func (e Entry) Key() Key {
	return Key{Title: e.Title, Resolution: e.Resolution, Container: e.Container}
}

// Filename returns the canonical basename for the entry.
func (e Entry) Filename() string {
	return ComposeFilename(e.Title, e.Resolution, e.Container)
}

// EntryFromPath parses the basename of path into an Entry bound to that path.
func EntryFromPath(path string) (Entry, error) {
	title, res, c, err := ParseFilename(filepath.Base(path))
	if err != nil {
		return Entry{}, err
	}
	return Entry{Title: title, Resolution: res, Container: c, Path: path}, nil
}
