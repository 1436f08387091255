// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package dataplane

import (
	"context"

	"github.com/wtalioy/EulerGuard/pkg/policy"
)

// DataPlaneInterface defines the operations for data plane management.
// This interface is useful for testing and dependency injection.
type DataPlaneInterface interface {
	policy.Mirror
	Read(ctx context.Context) ([]byte, error)
	Parent(pid uint32) (uint32, bool)
	GetStatistics() Statistics
	Close() error
}

// Ensure DataPlane implements DataPlaneInterface
var _ DataPlaneInterface = (*DataPlane)(nil)
