// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SafeJoinPath joins name onto dir and fails when the result would leave
// dir, as a name like "../../etc/passwd" would.
func SafeJoinPath(dir string, name ...string) (string, error) {
	base, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}

	full := filepath.Join(append([]string{base}, name...)...)
	if full != base && !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %s", filepath.Join(name...), dir)
	}
	return full, nil
}
