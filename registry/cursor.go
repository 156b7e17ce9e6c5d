// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/industrial-twin/twinhub/pkg/errors"
)

// Source identifies the part-type collection a cursor was minted against.
type Source uint8

const (
	// SourceCatalog enumerates catalog part twins.
	SourceCatalog Source = iota
	// SourceSerialized enumerates serialized part twins.
	SourceSerialized
	// SourceJIS enumerates just-in-sequence part twins.
	SourceJIS
	// SourceBatch enumerates batch part twins.
	SourceBatch
)

// sourceOrder is the fixed precedence in which the unified pagination
// engine walks the part-type collections. Catalog parts are always
// exhausted before serialized parts.
var sourceOrder = [...]Source{SourceCatalog, SourceSerialized, SourceJIS, SourceBatch}

var sourceTags = map[Source]string{
	SourceCatalog:    "CP",
	SourceSerialized: "SP",
	SourceJIS:        "JIS",
	SourceBatch:      "BATCH",
}

var sourceValues = map[string]Source{
	"CP":    SourceCatalog,
	"SP":    SourceSerialized,
	"JIS":   SourceJIS,
	"BATCH": SourceBatch,
}

func (s Source) String() string {
	return sourceTags[s]
}

// MarshalJSON serializes the source as its wire tag.
func (s Source) MarshalJSON() ([]byte, error) {
	tag, ok := sourceTags[s]
	if !ok {
		return nil, errors.ErrMalformedEntity
	}
	return json.Marshal(tag)
}

// UnmarshalJSON parses a wire tag into a source.
func (s *Source) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	src, ok := sourceValues[tag]
	if !ok {
		return errors.ErrMalformedEntity
	}
	*s = src
	return nil
}

// Cursor is the opaque continuation point of a paged listing: the source
// collection in progress and the creation-timestamp watermark of the last
// emitted twin. A cursor is only valid against the source it was minted
// for.
type Cursor struct {
	Source    Source     `json:"type"`
	Watermark *time.Time `json:"timestamp"`
}

// Encode serializes the cursor as a URL-safe base64 token.
func (c Cursor) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", errors.Wrap(errors.ErrMalformedEntity, err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// DecodeCursor parses a token produced by Encode.
func DecodeCursor(token string) (Cursor, error) {
	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, errors.Wrap(errors.ErrMalformedEntity, err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, errors.Wrap(errors.ErrMalformedEntity, err)
	}
	return c, nil
}

// SearchParam is one decoded lookup-by-asset-link parameter.
type SearchParam struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DecodeSearchParam parses a base64url JSON encoded lookup parameter. An
// unparseable entry is a client error.
func DecodeSearchParam(token string) (SearchParam, error) {
	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return SearchParam{}, errors.Wrap(errors.ErrMalformedEntity, err)
	}
	var p SearchParam
	if err := json.Unmarshal(data, &p); err != nil {
		return SearchParam{}, errors.Wrap(errors.ErrMalformedEntity, err)
	}
	return p, nil
}

// EncodeSearchParam serializes a lookup parameter the way partners send it.
func EncodeSearchParam(p SearchParam) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", errors.Wrap(errors.ErrMalformedEntity, err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}
