// key.go implements the path/key algebra spec §4.5 describes:
// generateKey, splitting, removeObjectFromKey, getNotifyableKeyFromKey.
/*
 * Copyright (c) 2024, clusterlib Authors. All rights reserved.
 */
package notifyable

import "strings"

// RootPath is the fixed two-component prefix identifying clusterlib's
// namespace and version (spec §6), followed by the root directory
// token itself.
const RootPath = "/_clusterlib/_1.0/_rootDir"

// Split breaks a path into its non-empty components, mirroring
// notifyablekeymanipulator.cc's tokenizer: "/a/b/c" -> ["a","b","c"].
func Split(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Join is the inverse of Split.
func Join(components []string) string {
	return "/" + strings.Join(components, "/")
}

// GenerateKey appends a kind-directory/name pair to parentKey, the
// general form every kind descriptor's generateKey specializes (spec
// §4.5). parentKey == "" means "directly under Root".
func GenerateKey(parentKey string, kind Kind, name string) string {
	base := parentKey
	if base == "" {
		base = RootPath
	}
	return base + "/" + kind.DirToken() + "/" + name
}

// IsValidName reports whether name is usable as a path component: a
// nonempty printable string containing no '/' (spec §3).
func IsValidName(name string) bool {
	if name == "" || strings.ContainsRune(name, '/') {
		return false
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

// removeObjectFromKey strips the trailing "<kindDir>/<name>" segment
// from key iff the penultimate component is a recognized kind
// directory; returns "" when key is already at Root (spec §4.5).
func RemoveObjectFromKey(key string) string {
	comps := Split(key)
	if len(comps) < 2 {
		return ""
	}
	if _, ok := KindFromDirToken(comps[len(comps)-2]); !ok {
		return ""
	}
	trimmed := comps[:len(comps)-2]
	if len(trimmed) == 0 {
		return ""
	}
	return Join(trimmed)
}

// ParentKey returns the key of the Notifyable that owns key's leaf
// object, i.e. an alias for RemoveObjectFromKey kept for readability
// at call sites outside this package.
func ParentKey(key string) string { return RemoveObjectFromKey(key) }

// LeafKind returns the Kind of the Notifyable identified by key, and
// the leaf name, by inspecting the last kind-directory/name pair.
func LeafKind(key string) (Kind, string, bool) {
	comps := Split(key)
	if len(comps) < 2 {
		return 0, "", false
	}
	k, ok := KindFromDirToken(comps[len(comps)-2])
	if !ok {
		return 0, "", false
	}
	return k, comps[len(comps)-1], true
}

// GetNotifyableKeyFromKey is the best-effort resolver spec §4.5
// describes: given an arbitrary repository path (e.g. a lock-node path
// or a state-bag node path), return the longest prefix that is a valid
// Notifyable key, or that same prefix with its last segment stripped,
// or "" if neither works. This lets the event pipeline (C2) derive the
// owning Notifyable for paths that are not themselves Notifyable keys.
func GetNotifyableKeyFromKey(arbitraryPath string) string {
	comps := Split(arbitraryPath)
	// Trying every prefix length from longest to shortest both finds
	// the longest valid Notifyable key AND, as a side effect, covers
	// the "strip the last segment and retry" fallback: that stripped
	// prefix is simply the next-shorter candidate in this same loop.
	for n := len(comps); n >= 2; n-- {
		candidate := Join(comps[:n])
		if _, _, ok := LeafKind(candidate); ok {
			return candidate
		}
	}
	return ""
}

// IsRoot reports whether key names the single Root Notifyable.
func IsRoot(key string) bool {
	return key == RootPath
}
