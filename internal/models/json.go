package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// The extension stores loosely typed JSON: ids and chapter labels show up as
// numbers or strings depending on the site that produced them. The types below
// accept either form on input and write one canonical form back.

var null = []byte("null")

// FlexString is a string that also accepts JSON numbers.
type FlexString string

func (s FlexString) String() string { return string(s) }

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, null) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = FlexString(n.String())
	return nil
}

// ProviderID identifies a title at a metadata provider. The primary provider
// uses integers, the secondary one UUIDs.
type ProviderID string

func (id ProviderID) String() string { return string(id) }

func (id ProviderID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return null, nil
	}
	if isDigits(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *ProviderID) UnmarshalJSON(data []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	*id = ProviderID(s)
	return nil
}

// ChapterCount is the number of read chapters. Some sites store the list of
// chapter labels instead of a count; a list decodes to its length.
type ChapterCount int

func (c *ChapterCount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, null) {
		*c = 0
		return nil
	}
	switch data[0] {
	case '[':
		var labels []json.RawMessage
		if err := json.Unmarshal(data, &labels); err != nil {
			return err
		}
		*c = ChapterCount(len(labels))
		return nil
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			*c = 0
			return nil
		}
		*c = ChapterCount(math.Floor(f))
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*c = ChapterCount(math.Floor(f))
	return nil
}

// CheckedAt is an epoch-ms stamp that older exports wrote as a plain boolean.
// true decodes to 1 (checked long ago), false to 0 (never checked).
type CheckedAt int64

func (c *CheckedAt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, null), bytes.Equal(data, []byte("false")):
		*c = 0
		return nil
	case bytes.Equal(data, []byte("true")):
		*c = 1
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*c = CheckedAt(f)
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
