// Copyright 2026 The ListDB Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package errors

import "errors"

var (
	ErrSpaceDoesNotExist  = errors.New("space does not exist")
	ErrSpaceAlreadyExists = errors.New("space already exists")

	ErrPartitionDoesNotExist = errors.New("partition does not exist")

	ErrEntityDoesNotExist = errors.New("entity does not exist")

	ErrUnknownField     = errors.New("unknown field")
	ErrUnknownFieldType = errors.New("unknown field type")
	ErrUnknownSpaceType = errors.New("unknown space type")
	ErrUnknownOpType    = errors.New("unknown operation type")

	ErrMissingLocation = errors.New("geo space entity has no location field")
	ErrInvalidLocation = errors.New("invalid location value")

	ErrInvalidEntity = errors.New("invalid entity")
	ErrInvalidSchema = errors.New("invalid space schema")

	ErrEntityMismatchPartition = errors.New("entity id does not match partition")

	ErrExceedMaxPartitions = errors.New("partition count exceeds the limit")

	ErrListNumExceed = errors.New("list num exceeds the limit")

	ErrNotIndexed = errors.New("field is not indexed")
)
