/*
 *
 * Copyright 2026 ListDB authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

/*

# ListDB: an embedded, partitioned entity database

## Data Model

* Spaces and Entities.

* Entity, entity id --> entity fields, an entity is represented as a document

* Space, the logical 'type' of entities. All entities of a space share a fixed
field schema (name, type, indexed flag) declared at space creation.

## Storage

* Entities live in storage partitions backed by a column-family KV store,
a single rocksdb instance per database.

* The owning partition is encoded into the entity id, so locating an entity
never needs a lookup table.

* Hash spaces spread entities across partitions by mixing the allocation
sequence; geo spaces pick the partition from the H3 cell of the entity's
location field, so entities that are close on the map share a partition.

## Transactions

* Every write is a transaction: a batch of operations appended to the
transaction log and applied to the partitions through a single KV write batch.

* On open, records above the applied checkpoint are replayed, so a crash
between append and apply loses nothing.

## Queries

* Secondary indexes over indexed fields serve exact-match field scans.

* A Datalog engine evaluates user rules over base predicates derived from the
stored entities.


## Building Blocks

* Rocksdb
* Mangle
* H3
* Prometheus

*/

package listdb
