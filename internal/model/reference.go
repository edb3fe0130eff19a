package model

import "time"

// ReferenceKind names a kind of shared master data. Every kind listed in
// ReferenceKinds is write-protected.
type ReferenceKind string

const (
	KindState                     ReferenceKind = "state"
	KindDistrict                  ReferenceKind = "district"
	KindTaluk                     ReferenceKind = "taluk"
	KindLocalBody                 ReferenceKind = "local_body"
	KindWard                      ReferenceKind = "ward"
	KindAssemblyConstituency      ReferenceKind = "assembly_constituency"
	KindParliamentaryConstituency ReferenceKind = "parliamentary_constituency"
	KindPollingStation            ReferenceKind = "polling_station"
)

// ReferenceKinds is the fixed set of administrative geography and
// constituency kinds.
var ReferenceKinds = []ReferenceKind{
	KindState,
	KindDistrict,
	KindTaluk,
	KindLocalBody,
	KindWard,
	KindAssemblyConstituency,
	KindParliamentaryConstituency,
	KindPollingStation,
}

// ParseReferenceKind returns the kind named by s, if known.
func ParseReferenceKind(s string) (ReferenceKind, bool) {
	for _, k := range ReferenceKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Operation is the kind of persistence call made against reference data.
type Operation string

const (
	OpGet        Operation = "get"
	OpList       Operation = "list"
	OpCreate     Operation = "create"
	OpCreateMany Operation = "create_many"
	OpUpdate     Operation = "update"
	OpUpdateMany Operation = "update_many"
	OpUpsert     Operation = "upsert"
	OpUpsertMany Operation = "upsert_many"
	OpDelete     Operation = "delete"
	OpDeleteMany Operation = "delete_many"
)

// IsWrite reports whether op mutates storage. Unknown operations are
// treated as writes.
func (op Operation) IsWrite() bool {
	switch op {
	case OpGet, OpList:
		return false
	}
	return true
}

// ReferenceRecord is one row of `reference_entities`. Code is unique within
// a kind; ParentID links a ward to its local body, a local body to its
// district, and so on.
type ReferenceRecord struct {
	ID         string            `json:"id"`
	Kind       ReferenceKind     `json:"kind"`
	Code       string            `json:"code"`
	Name       string            `json:"name"`
	ParentID   string            `json:"parentId,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}
