// Package keys is the registry of composite key patterns for every record kind stored in the
// Acorn Pups tables, plus pure functions that build a record's partition and sort key from its
// natural keys.
package keys

import (
	"fmt"
	"slices"

	"github.com/acorn-pups/dbinfra"
)

// Kind names a record variant.
type Kind string

const (
	KindUserProfile          Kind = "UserProfile"
	KindDeviceMetadata       Kind = "DeviceMetadata"
	KindDeviceSettings       Kind = "DeviceSettings"
	KindDeviceUserPermission Kind = "DeviceUserPermission"
	KindDeviceInvitation     Kind = "DeviceInvitation"
	KindDeviceStatus         Kind = "DeviceStatus"
	KindUserEndpoint         Kind = "UserEndpoint"
	KindDeviceLog            Kind = "DeviceLog"
)

// StatusType is the fixed set of device status records kept per device.
type StatusType string

const (
	StatusCurrent      StatusType = "CURRENT"
	StatusHealth       StatusType = "HEALTH"
	StatusConnectivity StatusType = "CONNECTIVITY"
)

// StatusTypes returns the recognised status types.
func StatusTypes() []StatusType {
	return []StatusType{StatusCurrent, StatusHealth, StatusConnectivity}
}

// ValidStatusType reports whether s is one of the recognised status types.
func ValidStatusType(s string) bool {
	return slices.Contains(StatusTypes(), StatusType(s))
}

// Pattern is the key layout of one record kind.
type Pattern struct {
	Kind Kind     `json:"kind" yaml:"kind"`
	PK   Template `json:"pk" yaml:"pk"`
	SK   Template `json:"sk" yaml:"sk"`
}

// Fields returns the natural keys a caller supplies to For, in order: the partition key fields
// followed by any sort key fields not already named by the partition key.
func (p Pattern) Fields() []string {
	fields := p.PK.Fields()
	for _, f := range p.SK.Fields() {
		if !slices.Contains(fields, f) {
			fields = append(fields, f)
		}
	}
	return fields
}

// Key is a rendered primary key.
type Key struct {
	PK string `json:"pk" yaml:"pk"`
	SK string `json:"sk" yaml:"sk"`
}

var registry = []Pattern{
	{Kind: KindUserProfile, PK: "USER#{user_id}", SK: "PROFILE"},
	{Kind: KindDeviceMetadata, PK: "DEVICE#{device_id}", SK: "METADATA"},
	{Kind: KindDeviceSettings, PK: "DEVICE#{device_id}", SK: "SETTINGS"},
	{Kind: KindDeviceUserPermission, PK: "DEVICE#{device_id}", SK: "USER#{user_id}"},
	{Kind: KindDeviceInvitation, PK: "INVITATION#{invitation_id}", SK: "METADATA"},
	{Kind: KindDeviceStatus, PK: "DEVICE#{device_id}", SK: "STATUS#{status_type}"},
	{Kind: KindUserEndpoint, PK: "USER#{user_id}", SK: "ENDPOINT#{device_fingerprint}"},
	{Kind: KindDeviceLog, PK: "DEVICE#{device_id}", SK: "LOG#{timestamp}#{log_id}"},
}

// Patterns returns the registry in declaration order.
func Patterns() []Pattern {
	return slices.Clone(registry)
}

// Lookup returns the pattern registered for kind.
func Lookup(kind Kind) (Pattern, bool) {
	for _, p := range registry {
		if p.Kind == kind {
			return p, true
		}
	}
	return Pattern{}, false
}

// For renders the key of a record of the given kind from its natural keys, supplied
// positionally in Pattern.Fields order.
func For(kind Kind, ids ...string) (Key, error) {
	p, ok := Lookup(kind)
	if !ok {
		return Key{}, dbinfra.NewError(dbinfra.ErrorCodeSchemaInvalid, string(kind), "unknown record kind")
	}

	fields := p.Fields()
	if len(ids) != len(fields) {
		return Key{}, dbinfra.NewError(dbinfra.ErrorCodeSchemaInvalid, string(kind),
			fmt.Sprintf("expected %d key values (%v), got %d", len(fields), fields, len(ids)))
	}

	values := make(map[string]string, len(fields))
	for i, f := range fields {
		values[f] = ids[i]
	}
	if st, ok := values["status_type"]; ok && !ValidStatusType(st) {
		return Key{}, dbinfra.NewError(dbinfra.ErrorCodeSchemaInvalid, string(kind),
			fmt.Sprintf("status_type %q must be one of %v", st, StatusTypes()))
	}

	pk, err := p.PK.Render(values)
	if err != nil {
		return Key{}, dbinfra.WrapError(dbinfra.ErrorCodeSchemaInvalid, string(kind), err)
	}
	sk, err := p.SK.Render(values)
	if err != nil {
		return Key{}, dbinfra.WrapError(dbinfra.ErrorCodeSchemaInvalid, string(kind), err)
	}
	return Key{PK: pk, SK: sk}, nil
}

func UserProfile(userID string) (Key, error) {
	return For(KindUserProfile, userID)
}

func DeviceMetadata(deviceID string) (Key, error) {
	return For(KindDeviceMetadata, deviceID)
}

func DeviceSettings(deviceID string) (Key, error) {
	return For(KindDeviceSettings, deviceID)
}

func DeviceUserPermission(deviceID, userID string) (Key, error) {
	return For(KindDeviceUserPermission, deviceID, userID)
}

func DeviceInvitation(invitationID string) (Key, error) {
	return For(KindDeviceInvitation, invitationID)
}

func DeviceStatus(deviceID string, statusType StatusType) (Key, error) {
	return For(KindDeviceStatus, deviceID, string(statusType))
}

func UserEndpoint(userID, deviceFingerprint string) (Key, error) {
	return For(KindUserEndpoint, userID, deviceFingerprint)
}

// DeviceLog keys sort chronologically within a device when timestamp is ISO-8601.
func DeviceLog(deviceID, timestamp, logID string) (Key, error) {
	return For(KindDeviceLog, deviceID, timestamp, logID)
}
