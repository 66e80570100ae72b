// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "fmt"

// GroupAccessRight is the rights string on a group ("r", "rw", "rwd").
type GroupAccessRight string

const (
	GroupRead            GroupAccessRight = "r"
	GroupReadWrite       GroupAccessRight = "rw"
	GroupReadWriteDelete GroupAccessRight = "rwd"
)

// Group is a sharing group within a tenant. The join key is only
// present for the group owner and for tenant admins.
type Group struct {
	ID       string           `json:"id"`
	TenantID string           `json:"tenantId,omitempty"`
	OwnerID  string           `json:"ownerId,omitempty"`
	Name     string           `json:"name"`
	JoinKey  string           `json:"joinKey,omitempty"`
	Rights   GroupAccessRight `json:"rights,omitempty"`
}

// String redacts the join key; groups end up in logs.
func (g Group) String() string {
	return fmt.Sprintf("Group{id=%s name=%q rights=%s joinKey_present=%t}",
		g.ID, g.Name, g.Rights, g.JoinKey != "")
}

// GroupInfo is the admin listing shape: the group plus its membership.
type GroupInfo struct {
	Group
	UserIDs []string `json:"users,omitempty"`
}
