// Copyright 2024 The ccnsync Authors
// This file is part of ccnsync.
//
// ccnsync is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ccnsync is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with ccnsync.  If not, see <http://www.gnu.org/licenses/>.

// Package ccnsync implements the Sync engine of a content-centric
// networking repository: it maintains eventually-consistent replicas of
// named-object slices across cooperating repositories by exchanging
// Merkle-style summary trees over an interest/data request protocol.
//
// The engine owns a persistent per-slice content-addressed tree, a hash
// cache shared across slices, and two cooperative state machines —
// Update and Compare — driven by a single heartbeat. Content storage,
// transport, naming and cryptographic primitives are external
// collaborators reached through the Storage and Transport interfaces.
package ccnsync
