package ext2sim

import (
	"strings"

	"golang.org/x/exp/slices"
)

// SplitPath separates a pathname into its parent directory and base name
// (e.g. "/abc/def/ghi" -> "/abc/def", "ghi"), and into its slash-separated
// component names, mirroring PathComponents. Empty components produced by
// repeated slashes are dropped, the same way the original's getline(...,
// '/') tokenizer skips them, and a bare "." component (e.g. in "a/./b") is
// dropped too, since it never names anything Find wouldn't already resolve
// to the current directory.
func SplitPath(pathname string) (parent, child string, names []string) {
	if pathname == "" {
		return "", "", nil
	}

	for _, part := range strings.Split(pathname, "/") {
		if part != "" {
			names = append(names, part)
		}
	}
	for {
		i := slices.Index(names, ".")
		if i < 0 {
			break
		}
		names = slices.Delete(names, i, i+1)
	}
	names = slices.Clip(names)

	idx := strings.LastIndex(pathname, "/")
	switch {
	case idx < 0:
		parent = "."
		child = pathname
	case idx == 0:
		parent = "/"
		child = pathname[1:]
	default:
		parent = pathname[:idx]
		child = pathname[idx+1:]
	}
	if child == "" {
		child = "/"
	}
	return parent, child, names
}
