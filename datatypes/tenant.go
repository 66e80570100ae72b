// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Tenant is the top-level multi-tenant boundary. Its entities, users,
// and groups are isolated from every other tenant.
type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// APIKey is only returned on tenant creation.
	APIKey string `json:"apiKey,omitempty"`

	// OntologyName is the ontology context bound to the tenant.
	OntologyName string `json:"ontologyName,omitempty"`

	// VectorSearchDataProperties/DocumentProperties configure which
	// literals feed the tenant's vector indexes.
	VectorSearchDataProperties     []string `json:"vectorSearchDataProperties,omitempty"`
	VectorSearchDocumentProperties []string `json:"vectorSearchDocumentProperties,omitempty"`
}
