// Copyright 2020 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-ethereum.  If not, see <http://www.gnu.org/licenses/>.

package mclock

import "time"

// monotime returns the current time in nanoseconds from a monotonic clock.
// The stdlib time package already returns monotonic readings embedded in
// time.Time values since Go 1.9; Sub on two such values yields a duration
// derived from the monotonic reading, which is all AbsTime needs.
var processStart = time.Now()

func monotime() time.Duration {
	return time.Since(processStart)
}
