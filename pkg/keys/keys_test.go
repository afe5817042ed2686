package keys

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acorn-pups/dbinfra"
)

func TestFor_RendersEveryKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		kind Kind
		ids  []string
		want Key
	}{
		{"user profile", KindUserProfile, []string{"sub-1"}, Key{PK: "USER#sub-1", SK: "PROFILE"}},
		{"device metadata", KindDeviceMetadata, []string{"d1"}, Key{PK: "DEVICE#d1", SK: "METADATA"}},
		{"device settings", KindDeviceSettings, []string{"d1"}, Key{PK: "DEVICE#d1", SK: "SETTINGS"}},
		{"permission", KindDeviceUserPermission, []string{"d1", "u1"}, Key{PK: "DEVICE#d1", SK: "USER#u1"}},
		{"invitation", KindDeviceInvitation, []string{"inv1"}, Key{PK: "INVITATION#inv1", SK: "METADATA"}},
		{"status", KindDeviceStatus, []string{"d1", "HEALTH"}, Key{PK: "DEVICE#d1", SK: "STATUS#HEALTH"}},
		{"endpoint", KindUserEndpoint, []string{"u1", "fp"}, Key{PK: "USER#u1", SK: "ENDPOINT#fp"}},
		{"log", KindDeviceLog, []string{"d1", "2024-05-01T10:00:00Z", "l1"}, Key{PK: "DEVICE#d1", SK: "LOG#2024-05-01T10:00:00Z#l1"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := For(tc.kind, tc.ids...)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestTypedHelpers(t *testing.T) {
	t.Parallel()

	k, err := DeviceStatus("d1", StatusConnectivity)
	require.NoError(t, err)
	require.Equal(t, "STATUS#CONNECTIVITY", k.SK)

	k, err = DeviceLog("d1", "t1", "l1")
	require.NoError(t, err)
	require.Equal(t, Key{PK: "DEVICE#d1", SK: "LOG#t1#l1"}, k)

	k, err = UserProfile("u1")
	require.NoError(t, err)
	require.Equal(t, "USER#u1", k.PK)
}

func TestFor_Rejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		kind Kind
		ids  []string
	}{
		{"unknown kind", Kind("Pet"), []string{"p1"}},
		{"too few values", KindDeviceUserPermission, []string{"d1"}},
		{"too many values", KindUserProfile, []string{"u1", "u2"}},
		{"empty segment", KindUserProfile, []string{""}},
		{"blank segment", KindDeviceInvitation, []string{"  "}},
		{"delimiter in segment", KindDeviceLog, []string{"d1", "t#1", "l1"}},
		{"unknown status type", KindDeviceStatus, []string{"d1", "BATTERY"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := For(tc.kind, tc.ids...)
			require.Error(t, err)
			require.True(t, dbinfra.IsCode(err, dbinfra.ErrorCodeSchemaInvalid), "got %v", err)
		})
	}
}

func TestTemplate_FieldsAndPrefix(t *testing.T) {
	t.Parallel()

	tpl := Template("LOG#{timestamp}#{log_id}")
	require.Equal(t, []string{"timestamp", "log_id"}, tpl.Fields())
	require.Equal(t, "LOG#", tpl.Prefix())
	require.False(t, tpl.Literal())

	require.Equal(t, "METADATA", Template("METADATA").Prefix())
	require.True(t, Template("METADATA").Literal())
	require.Nil(t, Template("PROFILE").Fields())
}

func TestTemplate_Validate(t *testing.T) {
	t.Parallel()

	for _, p := range Patterns() {
		require.NoError(t, p.PK.Validate(), p.Kind)
		require.NoError(t, p.SK.Validate(), p.Kind)
	}

	for _, bad := range []Template{"", "{a}{b}", "USER#{", "USER#}", "USER#{}", "{a}X", "{{a}}"} {
		require.Error(t, bad.Validate(), string(bad))
	}
}

func TestPatterns_ReturnsCopy(t *testing.T) {
	t.Parallel()

	ps := Patterns()
	ps[0].PK = "MUTATED#{x}"

	p, ok := Lookup(KindUserProfile)
	require.True(t, ok)
	require.Equal(t, Template("USER#{user_id}"), p.PK)
	require.Len(t, Patterns(), 8)
}
