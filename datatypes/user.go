// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// UserRole is the platform role of a shadow user.
type UserRole string

const (
	RoleUser        UserRole = "User"
	RoleAdmin       UserRole = "Admin"
	RoleTenantAdmin UserRole = "TenantAdmin"
)

// User is the internal shadow user mapped from an external user id.
type User struct {
	// ID is the internal user id assigned by the platform.
	ID string `json:"id"`

	// ExternalUserID is the caller-controlled identifier.
	ExternalUserID string `json:"externalUserId"`

	TenantID string            `json:"tenantId,omitempty"`
	Roles    []UserRole        `json:"roles,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
}
