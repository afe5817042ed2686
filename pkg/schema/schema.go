// Package schema is the declarative catalog of the Acorn Pups tables: key attributes, secondary
// indexes and the record variants each table holds. The catalog is data; provisioning,
// publication and monitoring are driven from it.
package schema

import "github.com/acorn-pups/dbinfra/pkg/keys"

// MaxIndexesPerTable caps secondary indexes per table.
const MaxIndexesPerTable = 2

// KeyKind is a DynamoDB scalar attribute type.
type KeyKind string

const (
	KeyKindString KeyKind = "S"
	KeyKindNumber KeyKind = "N"
	KeyKindBinary KeyKind = "B"
)

// Projection is the set of attributes copied into an index.
type Projection string

const ProjectionAll Projection = "ALL"

// KeyDef describes a key attribute definition.
type KeyDef struct {
	Name string  `yaml:"name" json:"name"`
	Kind KeyKind `yaml:"kind" json:"kind"`
}

// Index describes a global secondary index.
type Index struct {
	Name         string     `yaml:"name" json:"name"`
	PartitionKey KeyDef     `yaml:"partitionKey" json:"partitionKey"`
	SortKey      *KeyDef    `yaml:"sortKey,omitempty" json:"sortKey,omitempty"`
	Projection   Projection `yaml:"projection" json:"projection"`
	Purpose      string     `yaml:"purpose,omitempty" json:"purpose,omitempty"`
}

// Record describes one record variant stored in a table.
type Record struct {
	Kind                keys.Kind     `yaml:"kind" json:"kind"`
	Description         string        `yaml:"description,omitempty" json:"description,omitempty"`
	PartitionKeyPattern keys.Template `yaml:"partitionKeyPattern" json:"partitionKeyPattern"`
	SortKeyPattern      keys.Template `yaml:"sortKeyPattern" json:"sortKeyPattern"`
	Attributes          []string      `yaml:"attributes" json:"attributes"`
}

// HasAttribute reports whether the record carries the named attribute.
func (r Record) HasAttribute(name string) bool {
	for _, a := range r.Attributes {
		if a == name {
			return true
		}
	}
	return false
}

// Table describes one table. Entity is the PascalCase logical name ("DeviceUsers"), Resource the
// plural kebab-case name used in physical names and parameter paths ("device-users").
type Table struct {
	Entity              string   `yaml:"entity" json:"entity"`
	Resource            string   `yaml:"resource" json:"resource"`
	DisplayName         string   `yaml:"displayName" json:"displayName"`
	Description         string   `yaml:"description,omitempty" json:"description,omitempty"`
	PartitionKey        KeyDef   `yaml:"partitionKey" json:"partitionKey"`
	SortKey             *KeyDef  `yaml:"sortKey,omitempty" json:"sortKey,omitempty"`
	TimeToLiveAttribute string   `yaml:"timeToLiveAttribute,omitempty" json:"timeToLiveAttribute,omitempty"`
	Indexes             []Index  `yaml:"indexes,omitempty" json:"indexes,omitempty"`
	Records             []Record `yaml:"records" json:"records"`
}

// Index returns the named index.
func (t Table) Index(name string) (Index, bool) {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return Index{}, false
}

// AttributeNames returns every attribute that takes part in the table or index keys, in first
// use order. These are the attribute definitions a table service needs.
func (t Table) AttributeNames() []KeyDef {
	var out []KeyDef
	seen := map[string]bool{}
	add := func(k *KeyDef) {
		if k == nil || seen[k.Name] {
			return
		}
		seen[k.Name] = true
		out = append(out, *k)
	}
	add(&t.PartitionKey)
	add(t.SortKey)
	for i := range t.Indexes {
		add(&t.Indexes[i].PartitionKey)
		add(t.Indexes[i].SortKey)
	}
	return out
}

func (t Table) clone() Table {
	out := t
	if t.SortKey != nil {
		sk := *t.SortKey
		out.SortKey = &sk
	}
	out.Indexes = nil
	for _, idx := range t.Indexes {
		if idx.SortKey != nil {
			sk := *idx.SortKey
			idx.SortKey = &sk
		}
		out.Indexes = append(out.Indexes, idx)
	}
	out.Records = make([]Record, len(t.Records))
	for i, r := range t.Records {
		r.Attributes = append([]string(nil), r.Attributes...)
		out.Records[i] = r
	}
	return out
}

// Catalog is the root type containing all table definitions.
type Catalog struct {
	Tables []Table `yaml:"tables" json:"tables"`
}

// Table returns the table with the given entity name.
func (c Catalog) Table(entity string) (Table, bool) {
	for _, t := range c.Tables {
		if t.Entity == entity {
			return t, true
		}
	}
	return Table{}, false
}

// Entities returns the entity names in catalog order.
func (c Catalog) Entities() []string {
	out := make([]string, 0, len(c.Tables))
	for _, t := range c.Tables {
		out = append(out, t.Entity)
	}
	return out
}

// Clone returns a deep copy.
func (c Catalog) Clone() Catalog {
	out := Catalog{Tables: make([]Table, len(c.Tables))}
	for i, t := range c.Tables {
		out.Tables[i] = t.clone()
	}
	return out
}
