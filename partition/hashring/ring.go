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

// Package hashring implements the consistent-hash ring used to place
// partition keys onto owners. Each owner contributes several virtual nodes
// so load spreads evenly; lookups walk the ring clockwise.
package hashring

import (
	"sort"
	"strconv"

	"go.uber.org/atomic"

	"github.com/uber/docstore/partition/murmur"
)

// DefaultVirtualNodesPerOwner is the default number of virtual nodes each
// owner contributes to the ring.
const DefaultVirtualNodesPerOwner = 3

type (
	// Node is one virtual node on the ring.
	Node struct {
		Hash  uint32
		Owner string
	}

	// Ring maps keys to owners. Lookups are lock free; Rebuild swaps in a
	// freshly built ring so concurrent readers never observe a partial one.
	Ring struct {
		virtualNodesPerOwner int
		state                atomic.Value // *ringState
	}

	ringState struct {
		nodes  []Node
		owners []string
	}
)

// New builds a ring over the given owners. A non-positive
// virtualNodesPerOwner falls back to the default.
func New(owners []string, virtualNodesPerOwner int) *Ring {
	if virtualNodesPerOwner <= 0 {
		virtualNodesPerOwner = DefaultVirtualNodesPerOwner
	}
	r := &Ring{virtualNodesPerOwner: virtualNodesPerOwner}
	r.Rebuild(owners)
	return r
}

// Rebuild replaces the ring contents with a ring over the new owner set.
// The swap is atomic; in-flight lookups finish against the old ring.
func (r *Ring) Rebuild(owners []string) {
	nodes := make([]Node, 0, len(owners)*r.virtualNodesPerOwner)
	for _, owner := range owners {
		for i := 0; i < r.virtualNodesPerOwner; i++ {
			nodes = append(nodes, Node{
				Hash:  murmur.HashString(owner + strconv.Itoa(i)),
				Owner: owner,
			})
		}
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Hash != nodes[j].Hash {
			return nodes[i].Hash < nodes[j].Hash
		}
		return nodes[i].Owner < nodes[j].Owner
	})

	ownersCopy := make([]string, len(owners))
	copy(ownersCopy, owners)

	r.state.Store(&ringState{nodes: nodes, owners: ownersCopy})
}

// Resolve maps a key to its owner. The ring is circular: a key hashing past
// the last node wraps to the first. Returns "" on an empty ring.
func (r *Ring) Resolve(key []byte) string {
	state := r.state.Load().(*ringState)
	if len(state.nodes) == 0 {
		return ""
	}

	keyHash := murmur.Hash(key, 0)
	idx := sort.Search(len(state.nodes), func(i int) bool {
		return state.nodes[i].Hash >= keyHash
	})
	if idx == len(state.nodes) {
		idx = 0
	}
	return state.nodes[idx].Owner
}

// ResolveString maps the UTF-8 bytes of key to its owner.
func (r *Ring) ResolveString(key string) string {
	return r.Resolve([]byte(key))
}

// Nodes returns a copy of the ring's nodes in ring order.
func (r *Ring) Nodes() []Node {
	state := r.state.Load().(*ringState)
	nodes := make([]Node, len(state.nodes))
	copy(nodes, state.nodes)
	return nodes
}

// Owners returns a copy of the owner set in registration order.
func (r *Ring) Owners() []string {
	state := r.state.Load().(*ringState)
	owners := make([]string, len(state.owners))
	copy(owners, state.owners)
	return owners
}
