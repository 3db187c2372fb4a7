// The MIT License (MIT)

// Copyright (c) 2017-2020 Uber Technologies Inc.

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package types

// OperationType is the kind of logical operation being routed.
type OperationType int

const (
	// OperationTypeCreate inserts a new document.
	OperationTypeCreate OperationType = iota
	// OperationTypeRead reads a single document.
	OperationTypeRead
	// OperationTypeReplace replaces an existing document.
	OperationTypeReplace
	// OperationTypeUpsert creates or replaces a document.
	OperationTypeUpsert
	// OperationTypeDelete removes a document.
	OperationTypeDelete
	// OperationTypeQuery runs a query, possibly across partitions.
	OperationTypeQuery
)

// IsWrite reports whether the operation mutates state and therefore must be
// routed to a writable region.
func (t OperationType) IsWrite() bool {
	switch t {
	case OperationTypeCreate, OperationTypeReplace, OperationTypeUpsert, OperationTypeDelete:
		return true
	default:
		return false
	}
}

func (t OperationType) String() string {
	switch t {
	case OperationTypeCreate:
		return "Create"
	case OperationTypeRead:
		return "Read"
	case OperationTypeReplace:
		return "Replace"
	case OperationTypeUpsert:
		return "Upsert"
	case OperationTypeDelete:
		return "Delete"
	case OperationTypeQuery:
		return "Query"
	default:
		return "Unknown"
	}
}

// ResourceType is the kind of resource an operation addresses.
type ResourceType int

const (
	// ResourceTypeDocument addresses a document.
	ResourceTypeDocument ResourceType = iota
	// ResourceTypeCollection addresses a collection.
	ResourceTypeCollection
	// ResourceTypeDatabase addresses a database.
	ResourceTypeDatabase
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeDocument:
		return "Document"
	case ResourceTypeCollection:
		return "Collection"
	case ResourceTypeDatabase:
		return "Database"
	default:
		return "Unknown"
	}
}
