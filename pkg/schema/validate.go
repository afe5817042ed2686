package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/acorn-pups/dbinfra"
	"github.com/acorn-pups/dbinfra/pkg/keys"
)

// Validate checks the structural invariants of every table and returns all violations joined.
// Each violation is a schema validation error naming the table (and index, when relevant).
func (c Catalog) Validate() error {
	if len(c.Tables) == 0 {
		return dbinfra.NewError(dbinfra.ErrorCodeSchemaInvalid, "", "catalog has no tables")
	}

	var errs []error
	entities := map[string]bool{}
	resources := map[string]bool{}
	for _, t := range c.Tables {
		if entities[t.Entity] {
			errs = append(errs, invalid(t.Entity, "duplicate entity"))
		}
		entities[t.Entity] = true
		if resources[t.Resource] {
			errs = append(errs, invalid(t.Entity, fmt.Sprintf("duplicate resource %q", t.Resource)))
		}
		resources[t.Resource] = true

		errs = append(errs, t.validate()...)
	}
	return errors.Join(errs...)
}

func (t Table) validate() []error {
	var errs []error
	if strings.TrimSpace(t.Entity) == "" {
		return []error{invalid("", "table entity is required")}
	}
	if !validResource(t.Resource) {
		errs = append(errs, invalid(t.Entity, fmt.Sprintf("resource %q must be lowercase kebab-case", t.Resource)))
	}
	if err := t.PartitionKey.validate(); err != nil {
		errs = append(errs, invalid(t.Entity, "partition key: "+err.Error()))
	}
	if t.SortKey != nil {
		if err := t.SortKey.validate(); err != nil {
			errs = append(errs, invalid(t.Entity, "sort key: "+err.Error()))
		}
	}

	if len(t.Indexes) > MaxIndexesPerTable {
		errs = append(errs, invalid(t.Entity,
			fmt.Sprintf("%d secondary indexes exceeds the limit of %d", len(t.Indexes), MaxIndexesPerTable)))
	}
	seen := map[string]bool{}
	for _, idx := range t.Indexes {
		subject := t.Entity + "." + idx.Name
		if strings.TrimSpace(idx.Name) == "" {
			errs = append(errs, invalid(t.Entity, "index name is required"))
			continue
		}
		if seen[idx.Name] {
			errs = append(errs, invalid(subject, "duplicate index name"))
		}
		seen[idx.Name] = true
		if idx.Projection != ProjectionAll {
			errs = append(errs, invalid(subject, fmt.Sprintf("projection %q is not supported", idx.Projection)))
		}
		if err := idx.PartitionKey.validate(); err != nil {
			errs = append(errs, invalid(subject, "partition key: "+err.Error()))
		} else if !t.recordsHave(idx.PartitionKey.Name) {
			errs = append(errs, invalid(subject,
				fmt.Sprintf("attribute %q is not present on any record", idx.PartitionKey.Name)))
		}
		if idx.SortKey != nil {
			if err := idx.SortKey.validate(); err != nil {
				errs = append(errs, invalid(subject, "sort key: "+err.Error()))
			} else if !t.recordsHave(idx.SortKey.Name) {
				errs = append(errs, invalid(subject,
					fmt.Sprintf("attribute %q is not present on any record", idx.SortKey.Name)))
			}
		}
	}

	if t.TimeToLiveAttribute != "" && !t.recordsHave(t.TimeToLiveAttribute) {
		errs = append(errs, invalid(t.Entity,
			fmt.Sprintf("time-to-live attribute %q is not present on any record", t.TimeToLiveAttribute)))
	}

	if len(t.Records) == 0 {
		errs = append(errs, invalid(t.Entity, "table declares no records"))
	}
	kinds := map[keys.Kind]bool{}
	for _, r := range t.Records {
		if kinds[r.Kind] {
			errs = append(errs, invalid(t.Entity, fmt.Sprintf("duplicate record kind %s", r.Kind)))
		}
		kinds[r.Kind] = true
		if err := r.validate(); err != nil {
			errs = append(errs, invalid(t.Entity, err.Error()))
		}
	}
	errs = append(errs, t.validateSortKeySpaces()...)
	return errs
}

func (r Record) validate() error {
	p, ok := keys.Lookup(r.Kind)
	if !ok {
		return fmt.Errorf("record kind %s is not registered", r.Kind)
	}
	if p.PK != r.PartitionKeyPattern || p.SK != r.SortKeyPattern {
		return fmt.Errorf("record kind %s patterns %s/%s do not match the key registry %s/%s",
			r.Kind, r.PartitionKeyPattern, r.SortKeyPattern, p.PK, p.SK)
	}
	if err := r.PartitionKeyPattern.Validate(); err != nil {
		return fmt.Errorf("record kind %s: %w", r.Kind, err)
	}
	if err := r.SortKeyPattern.Validate(); err != nil {
		return fmt.Errorf("record kind %s: %w", r.Kind, err)
	}
	for _, f := range p.Fields() {
		if !r.HasAttribute(f) {
			return fmt.Errorf("record kind %s: key field %q is not an attribute", r.Kind, f)
		}
	}
	return nil
}

// validateSortKeySpaces rejects record variants whose sort keys could collide within one
// partition of the same table.
func (t Table) validateSortKeySpaces() []error {
	var errs []error
	for i := 0; i < len(t.Records); i++ {
		for j := i + 1; j < len(t.Records); j++ {
			a, b := t.Records[i], t.Records[j]
			if a.PartitionKeyPattern.Prefix() != b.PartitionKeyPattern.Prefix() {
				continue
			}
			if SortKeysOverlap(a.SortKeyPattern, b.SortKeyPattern) {
				errs = append(errs, invalid(t.Entity,
					fmt.Sprintf("record kinds %s and %s have overlapping sort keys %s and %s",
						a.Kind, b.Kind, a.SortKeyPattern, b.SortKeyPattern)))
			}
		}
	}
	return errs
}

// SortKeysOverlap reports whether some rendering of a could equal some rendering of b.
func SortKeysOverlap(a, b keys.Template) bool {
	pa, pb := a.Prefix(), b.Prefix()
	switch {
	case a.Literal() && b.Literal():
		return pa == pb
	case a.Literal():
		return strings.HasPrefix(pa, pb) && len(pa) > len(pb)
	case b.Literal():
		return strings.HasPrefix(pb, pa) && len(pb) > len(pa)
	default:
		return strings.HasPrefix(pa, pb) || strings.HasPrefix(pb, pa)
	}
}

func (t Table) recordsHave(attr string) bool {
	for _, r := range t.Records {
		if r.HasAttribute(attr) {
			return true
		}
	}
	return false
}

func (k KeyDef) validate() error {
	if strings.TrimSpace(k.Name) == "" {
		return errors.New("attribute name is required")
	}
	switch k.Kind {
	case KeyKindString, KeyKindNumber, KeyKindBinary:
		return nil
	default:
		return fmt.Errorf("attribute %q has unsupported kind %q", k.Name, k.Kind)
	}
}

func validResource(s string) bool {
	if s == "" || s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return true
}

func invalid(subject, message string) error {
	return dbinfra.NewError(dbinfra.ErrorCodeSchemaInvalid, subject, message)
}
