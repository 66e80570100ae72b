// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package aleutianknowledge is a client library for the personal
// knowledge-graph platform. It covers the graph, ontology, semantic
// search, ink, and tenant-management services behind one shared
// transport.
//
// The packages layer as follows:
//
//   - datatypes holds the domain model (entities, ontology
//     references, localized content) and the JSON wire codecs.
//   - session tracks authenticated sessions and refreshes tokens.
//   - transport is the REST layer: auth injection, retries, DNS
//     caching, streaming.
//   - services/* are the per-service clients built on transport.
//
// A typical setup logs in once and hands the transport to each
// service client:
//
//	tp := transport.New(transport.Config{AuthServiceURL: authURL})
//	defer tp.Close()
//	if _, err := tp.Login(ctx, apiKey, "user-1"); err != nil {
//		return err
//	}
//	kg := graph.New(tp, graphURL)
//
// Every operation takes a context.Context and blocks until done;
// cancellation and deadlines come from the context. Clients are safe
// for concurrent use unless noted otherwise.
package aleutianknowledge
