// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vector

import "fmt"

// StoreError wraps a backend failure with the store name and the
// operation that failed.
type StoreError struct {
	Store string
	Op    string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Store, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// storeErr wraps err unless it is nil.
func storeErr(store, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Store: store, Op: op, Err: err}
}

// DimensionMismatchError reports a write whose embedding length
// disagrees with the dimension the store is committed to. It is not
// retryable; the embedding configuration has to change.
type DimensionMismatchError struct {
	Store string
	Want  int
	Got   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: embedding dimension mismatch: want %d, got %d", e.Store, e.Want, e.Got)
}
