// Copyright 2025 Poiesic Systems
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


package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/finrank/core"
)

// chunkMUS encodes a Chunk field by field. Field order is part of the
// on-disk format; append new fields at the end.
type chunkMUS struct{}

var ChunkMUS = chunkMUS{}

func (chunkMUS) Size(c core.Chunk) (size int) {
	size += ord.String.Size(c.ID)
	size += ord.String.Size(c.Text)
	size += ord.String.Size(c.Metadata.Company)
	size += ord.String.Size(c.Metadata.SourceFile)
	size += ord.String.Size(c.Metadata.FilingType)
	size += ord.String.Size(c.Metadata.FiscalYear)
	size += ord.String.Size(c.Metadata.Quarter)
	size += varint.Int.Size(c.Metadata.ChunkIndex)
	size += varint.Int.Size(c.Metadata.TotalChunks)
	size += varint.PositiveInt.Size(len(c.Vector))
	for _, f := range c.Vector {
		size += raw.Float32.Size(f)
	}
	size += varint.Int64.Size(c.IndexedAt.UnixMicro())
	return
}

func (chunkMUS) Marshal(c core.Chunk, bs []byte) (n int) {
	n = ord.String.Marshal(c.ID, bs)
	n += ord.String.Marshal(c.Text, bs[n:])
	n += ord.String.Marshal(c.Metadata.Company, bs[n:])
	n += ord.String.Marshal(c.Metadata.SourceFile, bs[n:])
	n += ord.String.Marshal(c.Metadata.FilingType, bs[n:])
	n += ord.String.Marshal(c.Metadata.FiscalYear, bs[n:])
	n += ord.String.Marshal(c.Metadata.Quarter, bs[n:])
	n += varint.Int.Marshal(c.Metadata.ChunkIndex, bs[n:])
	n += varint.Int.Marshal(c.Metadata.TotalChunks, bs[n:])
	n += varint.PositiveInt.Marshal(len(c.Vector), bs[n:])
	for _, f := range c.Vector {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	n += varint.Int64.Marshal(c.IndexedAt.UnixMicro(), bs[n:])
	return
}

func (chunkMUS) Unmarshal(bs []byte) (c core.Chunk, n int, err error) {
	var n1 int
	strs := []*string{
		&c.ID, &c.Text,
		&c.Metadata.Company, &c.Metadata.SourceFile, &c.Metadata.FilingType,
		&c.Metadata.FiscalYear, &c.Metadata.Quarter,
	}
	for _, s := range strs {
		*s, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	c.Metadata.ChunkIndex, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.Metadata.TotalChunks, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	var dim int
	dim, n1, err = varint.PositiveInt.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if dim < 0 || dim*4 > len(bs)-n {
		err = ErrTruncatedData
		return
	}
	c.Vector = make([]float32, dim)
	for i := range c.Vector {
		c.Vector[i], n1, err = raw.Float32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}

	var micros int64
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.IndexedAt = time.UnixMicro(micros).UTC()
	return
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	buf := make([]byte, ChunkMUS.Size(*chunk))
	ChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	chunk, _, err := ChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk: %w", ErrSerializationFailed, err)
	}
	return &chunk, nil
}
