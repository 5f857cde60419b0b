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

package proto

import (
	"encoding/json"
	"strconv"
)

type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeNumber   FieldType = "number"
	FieldTypeBool     FieldType = "bool"
	FieldTypeLocation FieldType = "location"
)

type SpaceType uint8

const (
	SpaceTypeHash SpaceType = iota + 1
	SpaceTypeGeo
)

// FieldMeta declares one field of a space's fixed schema.
type FieldMeta struct {
	Name    string    `json:"name"`
	Type    FieldType `json:"type"`
	Indexed bool      `json:"indexed"`
}

type Field struct {
	Name  string `json:"name"`
	Value []byte `json:"value"`
}

type Entity struct {
	ID     EntityID `json:"id"`
	Fields []Field  `json:"fields"`
}

// GetField returns the value of the named field and whether it is present.
func (e *Entity) GetField(name string) ([]byte, bool) {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return e.Fields[i].Value, true
		}
	}
	return nil, false
}

// GeoPoint is the wire form of a location field value.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p *GeoPoint) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

func (p *GeoPoint) Unmarshal(data []byte) error {
	return json.Unmarshal(data, p)
}

// SpaceMeta is the persisted description of a space.
type SpaceMeta struct {
	Sid         Sid         `json:"sid"`
	Name        string      `json:"name"`
	Type        SpaceType   `json:"type"`
	Partitions  PartitionID `json:"partitions"`
	LocationKey string      `json:"location_key,omitempty"`
	FixedFields []FieldMeta `json:"fixed_fields"`
}

type OpType uint32

const (
	OpCreateSpace OpType = iota + 1
	OpInsertEntity
	OpUpdateEntity
	OpDeleteEntity
	OpDropSpace
)

// Op is one operation of a transaction. Exactly one payload member is set,
// according to Type.
type Op struct {
	Type   OpType     `json:"type"`
	Sid    Sid        `json:"sid,omitempty"`
	Entity *Entity    `json:"entity,omitempty"`
	ID     EntityID   `json:"id,omitempty"`
	Meta   *SpaceMeta `json:"meta,omitempty"`
}

func (t OpType) String() string {
	switch t {
	case OpCreateSpace:
		return "create_space"
	case OpInsertEntity:
		return "insert"
	case OpUpdateEntity:
		return "update"
	case OpDeleteEntity:
		return "delete"
	case OpDropSpace:
		return "drop_space"
	default:
		return "op_" + strconv.Itoa(int(t))
	}
}
