// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.
package utils

import "fmt"

// Assert panics when cond is false. It guards compiler-internal invariants
// (e.g. IR well-formedness between passes), never user input: those go
// through the errs package instead.
func Assert(cond bool, format string, msg ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, msg...))
	}
}

func Any[T comparable](c T, cs ...T) bool {
	for _, cc := range cs {
		if c == cc {
			return true
		}
	}
	return false
}

func Unimplement(what string) {
	panic("not implemented yet: " + what)
}

func ShouldNotReachHere() {
	panic("should not reach here")
}

func Abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Align16 rounds n up to the next multiple of 16, the frame alignment the
// System V AMD64 ABI requires at a call site.
func Align16(n int) int {
	return (n + 15) &^ 15
}
