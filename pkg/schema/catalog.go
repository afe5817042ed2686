package schema

import "github.com/acorn-pups/dbinfra/pkg/keys"

var (
	pk = KeyDef{Name: "PK", Kind: KeyKindString}
	sk = KeyDef{Name: "SK", Kind: KeyKindString}
)

func str(name string) KeyDef { return KeyDef{Name: name, Kind: KeyKindString} }

func strp(name string) *KeyDef {
	k := str(name)
	return &k
}

func skp() *KeyDef {
	k := sk
	return &k
}

func record(kind keys.Kind, description string, attrs ...string) Record {
	p, _ := keys.Lookup(kind)
	return Record{
		Kind:                kind,
		Description:         description,
		PartitionKeyPattern: p.PK,
		SortKeyPattern:      p.SK,
		Attributes:          attrs,
	}
}

func index(name, purpose string, partition, sort string) Index {
	return Index{
		Name:         name,
		PartitionKey: str(partition),
		SortKey:      strp(sort),
		Projection:   ProjectionAll,
		Purpose:      purpose,
	}
}

var catalog = Catalog{Tables: []Table{
	{
		Entity:       "Users",
		Resource:     "users",
		DisplayName:  "Users",
		Description:  "User profiles and preferences",
		PartitionKey: pk,
		SortKey:      skp(),
		Indexes: []Index{
			index("GSI1", "Find user by email", "email", "user_id"),
		},
		Records: []Record{
			record(keys.KindUserProfile, "Identity-provider subject reused verbatim as user_id",
				"user_id", "email", "full_name", "phone", "timezone", "created_at", "updated_at",
				"last_login", "is_active", "push_notifications", "preferred_language",
				"sound_alerts", "vibration_alerts"),
		},
	},
	{
		Entity:       "Devices",
		Resource:     "devices",
		DisplayName:  "Devices",
		Description:  "Device metadata and settings",
		PartitionKey: pk,
		SortKey:      skp(),
		Indexes: []Index{
			index("GSI1", "Find devices by owner", "owner_user_id", "device_id"),
			index("GSI2", "Find device by serial number", "serial_number", "device_id"),
		},
		Records: []Record{
			record(keys.KindDeviceMetadata, "device_instance_id is regenerated on factory reset; device_id is permanent",
				"device_id", "device_instance_id", "serial_number", "mac_address", "device_name",
				"owner_user_id", "firmware_version", "hardware_version", "is_online", "last_seen",
				"wifi_ssid", "signal_strength", "created_at", "updated_at", "last_reset_at", "is_active"),
			record(keys.KindDeviceSettings, "",
				"device_id", "sound_enabled", "sound_volume", "led_brightness",
				"notification_cooldown", "quiet_hours_enabled", "quiet_hours_start", "quiet_hours_end"),
		},
	},
	{
		Entity:       "DeviceUsers",
		Resource:     "device-users",
		DisplayName:  "Device Users",
		Description:  "Device sharing and permissions",
		PartitionKey: pk,
		SortKey:      skp(),
		Indexes: []Index{
			index("GSI1", "Find a user's device access", "user_id", "device_id"),
		},
		Records: []Record{
			record(keys.KindDeviceUserPermission, "",
				"device_id", "user_id", "notifications_permission", "settings_permission",
				"notifications_enabled", "notification_sound", "notification_vibration",
				"quiet_hours_enabled", "quiet_hours_start", "quiet_hours_end",
				"custom_notification_sound", "device_nickname", "invited_by", "invited_at", "accepted_at"),
		},
	},
	{
		Entity:              "Invitations",
		Resource:            "invitations",
		DisplayName:         "Invitations",
		Description:         "Device sharing invitations",
		PartitionKey:        pk,
		SortKey:             skp(),
		TimeToLiveAttribute: "ttl",
		Indexes: []Index{
			index("GSI1", "Find invitations by device", "device_id", "created_at"),
			index("GSI2", "Find invitations by email", "invited_email", "created_at"),
		},
		Records: []Record{
			record(keys.KindDeviceInvitation, "",
				"invitation_id", "device_id", "invited_email", "invited_by", "invitation_token",
				"expires_at", "created_at", "accepted_at", "declined_at", "is_accepted", "is_expired", "ttl"),
		},
	},
	{
		Entity:       "DeviceStatus",
		Resource:     "device-status",
		DisplayName:  "Device Status",
		Description:  "Device health and status reports",
		PartitionKey: pk,
		SortKey:      skp(),
		Records: []Record{
			record(keys.KindDeviceStatus, "One record per status_type: CURRENT, HEALTH, CONNECTIVITY",
				"device_id", "status_type", "timestamp", "signal_strength", "is_online", "memory_usage",
				"cpu_temperature", "uptime", "error_count", "last_error_message", "firmware_version"),
		},
	},
	{
		Entity:       "UserEndpoints",
		Resource:     "user-endpoints",
		DisplayName:  "User Endpoints",
		Description:  "Push notification endpoints per user device",
		PartitionKey: pk,
		SortKey:      skp(),
		Records: []Record{
			record(keys.KindUserEndpoint, "",
				"user_id", "device_fingerprint", "expo_push_token", "platform", "device_info",
				"is_active", "created_at", "last_used", "updated_at"),
		},
	},
	{
		Entity:              "DeviceLogs",
		Resource:            "device-logs",
		DisplayName:         "Device Logs",
		Description:         "Device log entries, expired by ttl",
		PartitionKey:        pk,
		SortKey:             skp(),
		TimeToLiveAttribute: "ttl",
		Records: []Record{
			record(keys.KindDeviceLog, "",
				"device_id", "log_id", "timestamp", "level", "component", "message", "metadata",
				"created_at", "ttl"),
		},
	},
}}

// Default returns a copy of the Acorn Pups catalog.
func Default() Catalog {
	return catalog.Clone()
}

// Load returns the validated Acorn Pups catalog.
func Load() (Catalog, error) {
	c := Default()
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}
