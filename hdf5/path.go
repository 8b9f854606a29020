package hdf5

import (
	"fmt"
	"path"
	"strings"
)

// ParseAttrPath splits "/object/path@name" into the object path and the
// attribute name. "/@name" addresses the root group.
func ParseAttrPath(p string) (objectPath, attrName string, err error) {
	at := strings.LastIndex(p, "@")
	if at == -1 {
		return "", "", fmt.Errorf("%w: %q has no '@' separator", ErrInvalidPath, p)
	}
	attrName = p[at+1:]
	if attrName == "" {
		return "", "", fmt.Errorf("%w: empty attribute name in %q", ErrInvalidPath, p)
	}
	return CleanPath(p[:at]), attrName, nil
}

// JoinAttrPath is the inverse of ParseAttrPath.
func JoinAttrPath(objectPath, attrName string) string {
	objectPath = CleanPath(objectPath)
	if objectPath == "/" {
		return "/@" + attrName
	}
	return objectPath + "@" + attrName
}

// SplitPath splits a path into its non-empty components.
//
//   - "/" -> []
//   - "/foo" -> ["foo"]
//   - "foo//bar/" -> ["foo", "bar"]
func SplitPath(p string) []string {
	var parts []string
	for _, part := range strings.Split(p, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// CleanPath normalizes p to an absolute path without a trailing slash.
func CleanPath(p string) string {
	return path.Join("/", strings.Join(SplitPath(p), "/"))
}

// parentPath splits p into its parent group path and final name.
func parentPath(p string) (string, string) {
	parts := SplitPath(p)
	if len(parts) == 0 {
		return "/", ""
	}
	return "/" + strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1]
}
