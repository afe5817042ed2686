package provision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/acorn-pups/dbinfra"
	"github.com/acorn-pups/dbinfra/pkg/observability"
	"github.com/acorn-pups/dbinfra/pkg/policy"
	"github.com/acorn-pups/dbinfra/pkg/schema"
)

const app = "acorn-pups"

func mustPolicy(t *testing.T, env string) policy.Policy {
	t.Helper()
	p, err := policy.Resolve(env)
	require.NoError(t, err)
	return p
}

func TestDeclarations_DevAndProd(t *testing.T) {
	t.Parallel()

	dev, err := Declarations(app, schema.Default(), mustPolicy(t, "dev"))
	require.NoError(t, err)
	require.Len(t, dev, 7)

	users := dev[0]
	require.Equal(t, "acorn-pups-users-dev", users.Name)
	require.False(t, users.RecoveryEnabled)
	require.False(t, users.DeletionProtected)
	require.Equal(t, policy.TeardownDestroy, users.Teardown)
	require.Equal(t, policy.CapacityOnDemand, users.CapacityMode)
	require.Equal(t, map[string]string{"Project": app, "Environment": "dev", "Service": "Database"}, users.Tags)

	prod, err := Declarations(app, schema.Default(), mustPolicy(t, "prod"))
	require.NoError(t, err)
	for _, d := range prod {
		require.True(t, d.RecoveryEnabled, d.Entity)
		require.True(t, d.DeletionProtected, d.Entity)
		require.Equal(t, policy.TeardownRetain, d.Teardown, d.Entity)
	}
	require.Equal(t, "acorn-pups-device-users-prod", prod[2].Name)
	require.Equal(t, "ttl", prod[3].TimeToLiveAttribute)
}

func TestDeclarations_RejectsInvalidCatalog(t *testing.T) {
	t.Parallel()

	c := schema.Default()
	c.Tables[0].Indexes = append(c.Tables[0].Indexes, c.Tables[0].Indexes[0], c.Tables[0].Indexes[0])

	_, err := Declarations(app, c, mustPolicy(t, "dev"))
	require.Error(t, err)
	require.True(t, dbinfra.IsCode(err, dbinfra.ErrorCodeSchemaInvalid))
}

func TestEngine_ProvisionsEveryTableInOrder(t *testing.T) {
	t.Parallel()

	svc := NewMemoryTableService()
	logger := observability.NewTestLogger()
	engine := NewEngine(svc, WithLogger(logger))

	handles, err := engine.Provision(context.Background(), app, schema.Default(), mustPolicy(t, "dev"))
	require.NoError(t, err)
	require.Equal(t, 7, handles.Len())
	require.Equal(t, []string{
		"acorn-pups-users-dev", "acorn-pups-devices-dev", "acorn-pups-device-users-dev",
		"acorn-pups-invitations-dev", "acorn-pups-device-status-dev", "acorn-pups-user-endpoints-dev",
		"acorn-pups-device-logs-dev",
	}, svc.Names())

	devices, ok := handles.Get("Devices")
	require.True(t, ok)
	require.Equal(t, "arn:aws:dynamodb:us-east-1:000000000000:table/acorn-pups-devices-dev", devices.Identifier)
	require.Equal(t, "devices", devices.Resource)

	stored, ok := svc.Table("acorn-pups-devices-dev")
	require.True(t, ok)
	require.Len(t, stored.Indexes, 2)

	require.Len(t, logger.Messages("info"), 7)
	require.Equal(t, "provision", logger.Entries()[0].Component)
}

func TestEngine_ReapplyIsIdempotent(t *testing.T) {
	t.Parallel()

	svc := NewMemoryTableService()
	engine := NewEngine(svc)
	p := mustPolicy(t, "prod")

	first, err := engine.Provision(context.Background(), app, schema.Default(), p)
	require.NoError(t, err)
	second, err := engine.Provision(context.Background(), app, schema.Default(), p)
	require.NoError(t, err)

	require.Equal(t, first.All(), second.All())
	require.Len(t, svc.Names(), 7)
	require.Equal(t, 14, svc.Applies())
}

func TestEngine_FailureAbortsAndRollsBackCreatedTables(t *testing.T) {
	t.Parallel()

	svc := NewMemoryTableService()
	cause := errors.New("LimitExceededException: too many tables")
	svc.FailOn("Invitations", cause)

	_, err := NewEngine(svc).Provision(context.Background(), app, schema.Default(), mustPolicy(t, "dev"))
	require.Error(t, err)
	require.ErrorIs(t, err, cause)
	require.True(t, dbinfra.IsCode(err, dbinfra.ErrorCodeProvisionFailed))
	require.Contains(t, err.Error(), `"Invitations"`)

	require.Empty(t, svc.Names())
	require.Equal(t, 4, svc.Applies())
}

func TestEngine_FailureKeepsPreexistingTables(t *testing.T) {
	t.Parallel()

	svc := NewMemoryTableService()
	engine := NewEngine(svc)
	p := mustPolicy(t, "dev")
	_, err := engine.Provision(context.Background(), app, schema.Default(), p)
	require.NoError(t, err)

	svc.FailOn("DeviceLogs", errors.New("boom"))
	_, err = engine.Provision(context.Background(), app, schema.Default(), p)
	require.Error(t, err)
	require.Len(t, svc.Names(), 7)
}

type mockTableService struct {
	mock.Mock
}

func (m *mockTableService) ApplyTable(ctx context.Context, decl TableDeclaration) (Applied, error) {
	args := m.Called(ctx, decl.Entity)
	return args.Get(0).(Applied), args.Error(1)
}

func TestEngine_RejectsUnresolvedHandles(t *testing.T) {
	t.Parallel()

	svc := &mockTableService{}
	svc.On("ApplyTable", mock.Anything, "Users").
		Return(Applied{Handle: TableHandle{Name: "acorn-pups-users-dev"}, Created: true}, nil).Once()

	_, err := NewEngine(svc).Provision(context.Background(), app, schema.Default(), mustPolicy(t, "dev"))
	require.Error(t, err)
	require.True(t, dbinfra.IsCode(err, dbinfra.ErrorCodeProvisionFailed))
	svc.AssertExpectations(t)
}

type mockRollbackService struct {
	mockTableService
}

func (m *mockRollbackService) RollbackTable(ctx context.Context, h TableHandle) error {
	return m.Called(ctx, h.Name).Error(0)
}

func TestEngine_RollsBackTableCreatedBeforeApplyFailed(t *testing.T) {
	t.Parallel()

	svc := &mockRollbackService{}
	svc.On("ApplyTable", mock.Anything, "Users").Return(Applied{
		Handle:  TableHandle{Entity: "Users", Name: "acorn-pups-users-dev", Identifier: "arn:users"},
		Created: true,
	}, nil).Once()
	svc.On("ApplyTable", mock.Anything, "Devices").
		Return(Applied{Created: true}, errors.New("ValidationException: boom")).Once()
	svc.On("RollbackTable", mock.Anything, "acorn-pups-devices-dev").Return(nil).Once()
	svc.On("RollbackTable", mock.Anything, "acorn-pups-users-dev").Return(nil).Once()

	_, err := NewEngine(svc).Provision(context.Background(), app, schema.Default(), mustPolicy(t, "dev"))
	require.ErrorContains(t, err, "ValidationException: boom")
	require.Contains(t, err.Error(), `"Devices"`)
	svc.AssertExpectations(t)
}

func TestEngine_ApplyValidatesEveryDeclarationFirst(t *testing.T) {
	t.Parallel()

	decls, err := Declarations(app, schema.Default(), mustPolicy(t, "dev"))
	require.NoError(t, err)
	decls[2].PartitionKey = schema.KeyDef{}

	svc := NewMemoryTableService()
	_, err = NewEngine(svc).Apply(context.Background(), decls)
	require.True(t, dbinfra.IsCode(err, dbinfra.ErrorCodeSchemaInvalid))
	require.Contains(t, err.Error(), decls[2].Entity)
	require.Zero(t, svc.Applies())
	require.Empty(t, svc.Names())
}

func TestEngine_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewMemoryTableService()
	_, err := NewEngine(svc).Provision(ctx, app, schema.Default(), mustPolicy(t, "dev"))
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, svc.Applies())
}

func TestEngine_NilService(t *testing.T) {
	t.Parallel()

	_, err := NewEngine(nil).Provision(context.Background(), app, schema.Default(), mustPolicy(t, "dev"))
	require.True(t, dbinfra.IsCode(err, dbinfra.ErrorCodeProvisionFailed))
}

func TestHandles_RequireResolved(t *testing.T) {
	t.Parallel()

	hs := NewHandles(
		TableHandle{Entity: "Users", Name: "n", Identifier: "arn"},
		TableHandle{Entity: "Devices", Name: "n"},
	)
	require.NoError(t, hs.RequireResolved(dbinfra.ErrorCodeMonitorFailed, []string{"Users"}))

	err := hs.RequireResolved(dbinfra.ErrorCodeMonitorFailed, []string{"Users", "Devices"})
	require.True(t, dbinfra.IsCode(err, dbinfra.ErrorCodeMonitorFailed))
	require.Contains(t, err.Error(), `"Devices"`)

	err = hs.RequireResolved(dbinfra.ErrorCodeMonitorFailed, []string{"DeviceLogs"})
	require.Contains(t, err.Error(), "missing")
}

func TestTableDeclaration_Validate(t *testing.T) {
	t.Parallel()

	d := TableDeclaration{Entity: "Users", Name: "t", PartitionKey: schema.KeyDef{Name: "PK", Kind: schema.KeyKindString},
		CapacityMode: policy.CapacityOnDemand, Teardown: policy.TeardownRetain}
	require.NoError(t, d.Validate())

	d.Indexes = make([]schema.Index, 3)
	d.Teardown = "snapshot"
	err := d.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "secondary indexes")
	require.Contains(t, err.Error(), "snapshot")
}
